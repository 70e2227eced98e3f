package services

import (
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
)

// SanitizeFilename reduces an uploaded name to a safe base name: path
// components are dropped, whitespace becomes "_", and anything outside
// ASCII letters, digits, "-", "_" and "." is removed. Leading dots and
// underscores are trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base("/" + name)
	if name == "/" || name == "." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'):
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "._")
}

// sizeGuard counts bytes read and fails with common.ErrTooLarge once more
// than max bytes have passed. max <= 0 disables the limit.
type sizeGuard struct {
	r    io.Reader
	max  int64
	n    int64
	over bool
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.n += int64(n)
	if g.max > 0 && g.n > g.max {
		g.over = true
		return n, common.ErrTooLarge
	}
	return n, err
}

func (g *sizeGuard) exceeded() bool { return g.over }
func (g *sizeGuard) count() int64   { return g.n }

// seekableGuard keeps io.Seeker available to backends that rewind the body
// (the S3 client does, to sign the payload).
type seekableGuard struct {
	*sizeGuard
	s io.Seeker
}

func (g *seekableGuard) Seek(offset int64, whence int) (int64, error) {
	pos, err := g.s.Seek(offset, whence)
	if err == nil {
		g.n = pos
		g.over = g.max > 0 && pos > g.max
	}
	return pos, err
}

type guardReader interface {
	io.Reader
	exceeded() bool
	count() int64
}

func newSizeGuard(r io.Reader, max int64) guardReader {
	g := &sizeGuard{r: r, max: max}
	if s, ok := r.(io.Seeker); ok {
		return &seekableGuard{sizeGuard: g, s: s}
	}
	return g
}
