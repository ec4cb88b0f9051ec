// Package files mounts the team file-system service on a chi router.
//
//	r.Mount("/files", files.Router(svc, files.RouterOptions{
//		UserID: func(r *http.Request) (int64, bool) { return auth.UserID(r.Context()) },
//	}))
//
// Paths are logical (/f/{team}/..., /cf/{channel}/..., /wf/{channel}/...)
// and are passed in the path query parameter, or in the JSON body for copy,
// move and folder creation. Uploads send the raw chunk as the request body.
package files
