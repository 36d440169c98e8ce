// Package media defines the audio variant data model shared by the
// resolution engine: codecs, variant identifiers, language tracks and
// episodes.
package media
