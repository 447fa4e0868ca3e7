package pixel

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/xerrors"
)

// Color is an RGBA highlight color.
type Color [4]uint8

var (
	DefaultBaseColor = Color{255, 0, 0, 255}
	DefaultTestColor = Color{0, 255, 0, 255}
)

var ErrInvalidColor = xerrors.New("invalid color")

// Blend sums the RGB channels of both colors and forces alpha opaque.
// Channel sums are not clamped; they wrap at 256.
func Blend(base Color, test Color) Color {
	return Color{
		base[0] + test[0],
		base[1] + test[1],
		base[2] + test[2],
		255,
	}
}

func (c Color) String() string {
	return strconv.Itoa(int(c[0])) + "," + strconv.Itoa(int(c[1])) + "," + strconv.Itoa(int(c[2])) + "," + strconv.Itoa(int(c[3]))
}

// ParseColor accepts "r,g,b[,a]" decimal lists and "#rrggbb" or "#rrggbbaa"
// hex strings. A missing alpha is opaque.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s)
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, xerrors.Errorf("%w: %q", ErrInvalidColor, s)
	}

	c := Color{0, 0, 0, 255}
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return Color{}, xerrors.Errorf("%w: %q: %s", ErrInvalidColor, s, err)
		}
		c[i] = uint8(v)
	}
	return c, nil
}

func parseHexColor(s string) (Color, error) {
	alpha := uint8(255)
	switch len(s) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return Color{}, xerrors.Errorf("%w: %q: %s", ErrInvalidColor, s, err)
		}
		alpha = uint8(a)
		s = s[:7]
	default:
		return Color{}, xerrors.Errorf("%w: %q", ErrInvalidColor, s)
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, xerrors.Errorf("%w: %q: %s", ErrInvalidColor, s, err)
	}
	r, g, b := c.RGB255()
	return Color{r, g, b, alpha}, nil
}
