//go:build !whisper

package asr

func openEngine(LocalConfig) (Engine, error) {
	return nil, unavailable(Local, "built without whisper support (rebuild with -tags whisper)", nil)
}
