// Package files is the team file system: it translates logical paths into
// physical team-rooted paths, authorises every operation, serialises
// conflicting mutations across processes and publishes an event for every
// successful mutation.
//
// # Logical paths
//
// Callers never see physical paths. Three prefixes address storage:
//
//	/f/<teamId>/sub         the team root
//	/cf/<channelPathId>/sub a channel's files
//	/wf/<channelPathId>/sub a channel's wiki
//
// The empty path lists the team roots a user manages and "/cf" lists the
// channels shared with them. Translate returns a TranslatedPath carrying the
// physical path, the display path and the owning team and channel.
// Translations are memoised per request when the context carries a cache:
//
//	ctx = files.WithTranslationCache(ctx)
//	obj, err := svc.Info(ctx, "/cf/99/logo.png", userID)
//
// # Operations
//
// Every Service operation runs translate, authorise, lock (upload and
// thumbnail only), storage call, publish. Errors are the sentinels in
// errors.go; backend errors never reach the caller unwrapped.
//
// # Lifecycle hooks
//
// OnNewTeam, OnNewChannel, OnRenameChannel, OnCopyChannel, OnDeleteChannel
// and OnDeleteTeam keep the physical tree and the ChannelPath records in
// step. Multi-step hooks undo their completed steps when a later step
// fails; delete hooks remove storage before mapping rows and can be retried.
package files
