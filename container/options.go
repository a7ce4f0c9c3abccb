package container

// Option configures container file creation.
type Option func(*options)

type options struct {
	codec Codec
}

func defaultOptions() *options {
	return &options{codec: CodecZstd}
}

// WithCodec sets the chunk compression codec for datasets created in this
// file. Existing datasets keep the codec they were created with.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c.valid() {
			o.codec = c
		}
	}
}
