// Package storage is the physical layer under the team file system: a
// hierarchical namespace of folders and versioned files with side-car blobs
// attached to file entries.
//
// # Architecture
//
// The Storage interface covers info, listing, folder creation, chunked
// upload, download, move, copy, delete, version history and side-cars.
// Two implementations are provided:
//   - LocalStorage: filesystem-backed, keeps superseded versions under .meta
//   - S3Storage: S3 and S3-compatible services, relying on bucket versioning
//
// Every error returned by a backend is an *Error tagged with a Kind, so
// callers can branch on KindOf(err) or errors.Is(err, ErrNotFound) without
// knowing which backend produced it.
//
// # Listing
//
// ListOptions describes sorting, filtering and cursor windows. Backends that
// cannot push those options down share ApplyListOptions:
//
//	entries, err := store.List(ctx, "/f/7/Reports", storage.ListOptions{
//		SortBy:     storage.SortByModified,
//		Descending: true,
//		LimitAfter: 30,
//	})
//
// # Uploads
//
// Uploads arrive in chunks. Each chunk names its Offset and Session; the
// chunk with Final set publishes the assembled file and archives the
// previous content as a version:
//
//	res, err := store.Upload(ctx, storage.UploadInput{
//		Path:    "/f/7/report.pdf",
//		Body:    chunk,
//		Offset:  offset,
//		Final:   last,
//		Session: uploadID,
//	})
//	if err == nil && res.Complete {
//		log.Println("stored", res.Entry.ID)
//	}
package storage
