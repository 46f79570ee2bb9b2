package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyAlias      = "alias"
	KeyURL        = "url"
	KeyRef        = "ref"
	KeyCommit     = "commit"
	KeyWorkflow   = "workflow"
	KeyChainID    = "chain_id"
	KeyBuildID    = "build_id"
	KeyPollID     = "poll_id"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Alias(a string) slog.Attr          { return slog.String(KeyAlias, a) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Ref(name string) slog.Attr         { return slog.String(KeyRef, name) }
func Commit(hash string) slog.Attr      { return slog.String(KeyCommit, hash) }
func Workflow(alias string) slog.Attr   { return slog.String(KeyWorkflow, alias) }
func ChainID(id string) slog.Attr       { return slog.String(KeyChainID, id) }
func BuildID(id string) slog.Attr       { return slog.String(KeyBuildID, id) }
func PollID(id string) slog.Attr        { return slog.String(KeyPollID, id) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
