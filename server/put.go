package server

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/samber/mo"

	"github.com/davrock/davrock/storage"
)

// putUpload is the outcome of preparing an upload body outside the
// lock: the items to store plus, for whole-collection writes, the
// collection properties.
type putUpload struct {
	items []*storage.Item
	props map[string]string
}

// tagsByMIME reverses storage.MIMETypes for content-type fallbacks.
var tagsByMIME = map[string]string{
	"text/calendar": storage.TagCalendar,
	"text/vcard":    storage.TagAddressBook,
}

func (a *Application) doPut(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if !a.access(user, reqPath, "w", nil) {
		return notAllowed()
	}
	content, err := a.readContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("PUT", reqPath, err)
	}
	parentPath := storage.ParentPath(reqPath)
	permissions := a.rights.Authorized(user, reqPath, "Ww")
	parentPermissions := a.rights.Authorized(user, parentPath, "w")

	comps, err := storage.ParseComponents(content)
	if err != nil {
		a.logger.Warn("bad PUT request", "path", reqPath, "error", err)
		return badRequest()
	}
	// Prepare before locking. The mode guessed from the rights
	// configuration may not match the actual resource layout, in which
	// case the preparation is redone under the lock.
	prepTag, prepWhole, prepResult := a.preparePut(
		r, reqPath, comps, permissions, parentPermissions, "", mo.None[bool]())

	release, err := a.storage.AcquireLock(storage.LockWrite, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	defer release()
	res, err := a.discoverOne(reqPath)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	parentRes, err := a.discoverOne(parentPath)
	if err != nil {
		a.logger.Error("discover failed", "path", parentPath, "error", err)
		return internalServerError()
	}
	parentCol, ok := parentRes.(*storage.Collection)
	if !ok {
		return conflict()
	}

	_, isCollection := res.(*storage.Collection)
	writeWholeCollection := isCollection || parentCol.Tag() == ""

	var tag string
	if writeWholeCollection {
		tag = prepTag
	} else {
		tag = parentCol.Tag()
	}

	if writeWholeCollection {
		need := "W"
		if tag != "" {
			need = "w"
		}
		if a.rights.Authorized(user, reqPath, need) == "" {
			return notAllowed()
		}
	} else if a.rights.Authorized(user, parentPath, "w") == "" {
		return notAllowed()
	}

	etag := r.Header.Get("If-Match")
	if res == nil && etag != "" {
		// ETag asked but no resource found: it has been removed.
		return preconditionFailed()
	}
	if res != nil && etag != "" && etag != resourceETag(res) {
		// ETag asked but not matching: the resource has changed.
		return preconditionFailed()
	}
	if res != nil && r.Header.Get("If-None-Match") == "*" {
		// Creation asked but the resource exists already.
		return preconditionFailed()
	}

	if tag != prepTag || prepWhole != mo.Some(writeWholeCollection) {
		a.logger.Debug("upload mode decided under lock differs, preparing again",
			"path", reqPath, "tag", tag, "whole_collection", writeWholeCollection)
		prepTag, prepWhole, prepResult = a.preparePut(
			r, reqPath, comps, permissions, parentPermissions,
			tag, mo.Some(writeWholeCollection))
	}
	upload, err := prepResult.Get()
	if err != nil {
		a.logger.Warn("bad PUT request", "path", reqPath, "error", err)
		return badRequest()
	}

	var newETag string
	if writeWholeCollection {
		col, err := a.storage.CreateCollection(reqPath, upload.items, upload.props)
		if err != nil {
			a.logger.Warn("bad PUT request", "path", reqPath, "error", err)
			return badRequest()
		}
		newETag = col.ETag
	} else {
		if len(upload.items) != 1 {
			a.logger.Warn("bad PUT request", "path", reqPath,
				"error", "expected exactly one item")
			return badRequest()
		}
		prepared := upload.items[0]
		existing, _ := res.(*storage.Item)
		uidConflict := existing != nil && existing.UID != prepared.UID
		if existing == nil {
			has, err := a.storage.HasUID(parentCol, prepared.UID)
			if err != nil {
				a.logger.Error("uid lookup failed", "path", reqPath, "error", err)
				return internalServerError()
			}
			uidConflict = has
		}
		if uidConflict {
			prefix := "CR"
			if tag == storage.TagCalendar {
				prefix = "C"
			}
			return a.webdavErrorResponse(prefix, "no-uid-conflict")
		}
		stored, err := a.storage.Upload(parentCol, storage.Href(reqPath), prepared)
		if err != nil {
			a.logger.Warn("bad PUT request", "path", reqPath, "error", err)
			return badRequest()
		}
		newETag = stored.ETag
	}
	return response{
		status:  http.StatusCreated,
		headers: map[string]string{"ETag": newETag},
	}
}

// preparePut converts the parsed upload body into storable items. The
// write mode is either forced by the caller (after the actual layout
// has been discovered under the lock) or guessed from the rights the
// user holds on the target and its parent. Returns the decided tag and
// mode alongside the conversion result, so a failed conversion still
// tells the caller which decision it was based on.
func (a *Application) preparePut(r *http.Request, reqPath string, comps *storage.Components,
	permissions, parentPermissions, tag string, whole mo.Option[bool]) (string, mo.Option[bool], mo.Result[*putUpload]) {
	if whole.OrElse(false) || (!whole.IsPresent() && permissions != "" && parentPermissions == "") {
		whole = mo.Some(true)
		contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		tag = storage.PredictTagOfWholeCollection(comps, tagsByMIME[contentType])
		if tag == "" {
			return tag, whole, mo.Err[*putUpload](
				fmt.Errorf("%w: can't determine collection tag", storage.ErrInvalidInput))
		}
	} else if whole.IsPresent() || (permissions == "" && parentPermissions != "") {
		whole = mo.Some(false)
		if tag == "" {
			tag = storage.PredictTagOfParentCollection(comps)
		}
	}

	upload := &putUpload{}
	if tag != "" {
		var err error
		if whole.OrElse(false) {
			upload.items, err = storage.SplitCollectionItems(comps, tag)
		} else if whole.IsPresent() {
			var item *storage.Item
			item, err = storage.SingleItem(comps, tag)
			upload.items = []*storage.Item{item}
		}
		if err != nil {
			return tag, whole, mo.Err[*putUpload](err)
		}
	}
	if whole.OrElse(false) {
		upload.props = map[string]string{}
		if tag != "" {
			upload.props[storage.MetaTag] = tag
		}
		if tag == storage.TagCalendar && len(comps.Calendars) > 0 {
			storage.CollectionPropsFromCalendar(comps.Calendars[0], upload.props)
		}
		if err := storage.CheckAndSanitizeProps(upload.props); err != nil {
			return tag, whole, mo.Err[*putUpload](err)
		}
	}
	return tag, whole, mo.Ok(upload)
}
