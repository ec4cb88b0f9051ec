package logger

import "log/slog"

// Error records err under "error". A nil err yields an empty Attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the acting user under "user_id".
func UserID(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}

// TeamID records a team under "team_id".
func TeamID(id int64) slog.Attr {
	return slog.Int64("team_id", id)
}

// ChannelID records a channel under "channel_id". Zero ids are omitted.
func ChannelID(id int64) slog.Attr {
	if id == 0 {
		return slog.Attr{}
	}
	return slog.Int64("channel_id", id)
}

// Path records a logical or physical path under "path".
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Operation records the file operation name under "op".
func Operation(name string) slog.Attr {
	return slog.String("op", name)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records d under "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}
