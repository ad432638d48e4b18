package extract

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"
)

// magicSignature pairs a byte prefix with the mimetype/extension it
// implies. Order matters only for RIFF, which needs the extra WEBP
// sub-check; checked in declaration order (original MAGIC_SIGNATURES).
type magicSignature struct {
	prefix    []byte
	mimetype  string
	extension string
}

var magicSignatures = []magicSignature{
	{[]byte("%PDF"), "application/pdf", ".pdf"},
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg", ".jpg"},
	{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, "image/png", ".png"},
	{[]byte("GIF87a"), "image/gif", ".gif"},
	{[]byte("GIF89a"), "image/gif", ".gif"},
	{[]byte("RIFF"), "image/webp", ".webp"}, // needs "WEBP" within first 16 bytes, checked below
	{[]byte("PK\x03\x04"), "application/zip", ".zip"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "application/msword", ".doc"},
	{[]byte{0x1F, 0x8B}, "application/gzip", ".gz"},
	{[]byte("BZh"), "application/x-bzip2", ".bz2"},
	{[]byte("7z\xBC\xAF\x27\x1C"), "application/x-7z-compressed", ".7z"},
}

// DetectStreamInfo produces higher-confidence StreamInfo guesses for
// head (the first bytes of a stream) layered over base: content-based
// (magic bytes) first, then extension-based, then mimetype-to-extension.
// Mirrors FileDetector.detect's guess ordering (most confident first);
// callers dispatch on guesses[0] when present.
func DetectStreamInfo(head []byte, base StreamInfo) []StreamInfo {
	var guesses []StreamInfo

	if mimetype, ext := detectFromMagic(head); mimetype != "" {
		guesses = append(guesses, base.withGuess(mimetype, ext))
	}

	if base.Extension != "" {
		if extMime := mimetypeFromExtension(base.Extension); extMime != "" {
			guesses = append(guesses, base.withGuess(extMime, ""))
		}
	}

	if base.Mimetype != "" && base.Extension == "" {
		if ext := extensionFromMimetype(base.Mimetype); ext != "" {
			guesses = append(guesses, base.withGuess("", ext))
		}
	}

	if len(guesses) == 0 {
		guesses = append(guesses, base)
	}
	return guesses
}

func detectFromMagic(head []byte) (mimetype, ext string) {
	for _, sig := range magicSignatures {
		if !bytes.HasPrefix(head, sig.prefix) {
			continue
		}
		if string(sig.prefix) == "RIFF" {
			if !bytes.Contains(head, []byte("WEBP")) {
				continue
			}
		}
		return sig.mimetype, sig.extension
	}
	return "", ""
}

func mimetypeFromExtension(extension string) string {
	if extension == "" {
		return ""
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return mime.TypeByExtension(extension)
}

func extensionFromMimetype(mimetype string) string {
	exts, err := mime.ExtensionsByType(mimetype)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// IsTextFile reports whether info's mimetype looks text-based.
func IsTextFile(info StreamInfo) bool {
	if info.Mimetype == "" {
		return false
	}
	m := strings.ToLower(info.Mimetype)
	for _, prefix := range []string{"text/", "application/json", "application/xml", "application/javascript"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// extensionOf returns filepath.Ext lowercased, a small helper used by
// converters that only have a filename/url to go on.
func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
