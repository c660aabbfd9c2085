package ext4

// imageBackend abstracts positioned reads from whatever holds the
// filesystem image. Implementations must fill p completely or return
// an error; short reads are not surfaced to callers.
type imageBackend interface {
	readAt(p []byte, off int64) error
	size() int64
}
