package fdaf

import "errors"

// ErrInvalidConfiguration is returned by New when N is not a power of two,
// or the resulting frame size M = N/2 would be less than one. Construction
// fails atomically: no processor is returned and nothing is allocated.
var ErrInvalidConfiguration = errors.New("fdaf: invalid configuration")

// ErrInvalidFrameSize is returned by Process when far, mic, or out does not
// have exactly M samples. No processor state is mutated when this error is
// returned.
var ErrInvalidFrameSize = errors.New("fdaf: invalid frame size")
