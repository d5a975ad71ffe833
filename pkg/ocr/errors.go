package ocr

import "errors"

// ErrInsufficientAnchors is returned by the locator when fewer than the
// configured minimum of icon anchors matched. Recoverable: callers switch to
// the fixed-band fallback.
var ErrInsufficientAnchors = errors.New("insufficient template anchors")

// ErrNoTemplates is returned when the template table has no entries at all.
var ErrNoTemplates = errors.New("no icon templates loaded")

// ErrBadImage is returned for undecodable input bytes.
var ErrBadImage = errors.New("image could not be decoded")
