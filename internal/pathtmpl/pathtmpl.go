// Package pathtmpl expands filename templates for new log segments:
// ${var} named substitution, ${time:TZ:FMT} timestamp formatting and
// ${rnd:N} random suffixes.
package pathtmpl

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const randAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Expand renders tmpl against vars, using now as the current time for any
// ${time:...} substitutions.
func Expand(tmpl string, vars map[string]string, now time.Time) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '$' || i+1 >= len(tmpl) || tmpl[i+1] != '{' {
			out.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("pathtmpl: unterminated substitution at %d", i)
		}
		expr := tmpl[i+2 : i+end]
		rendered, err := expandOne(expr, vars, now)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		i += end + 1
	}
	return out.String(), nil
}

func expandOne(expr string, vars map[string]string, now time.Time) (string, error) {
	kind, rest, hasRest := strings.Cut(expr, ":")

	switch {
	case kind == "rnd" && hasRest:
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return "", fmt.Errorf("pathtmpl: bad ${rnd:%s}", rest)
		}
		return randString(n), nil

	case kind == "time" && hasRest:
		zonePart, format, ok := strings.Cut(rest, ":")
		if !ok {
			return "", fmt.Errorf("pathtmpl: ${time:%s} missing format", rest)
		}
		t, err := applyZone(now, zonePart)
		if err != nil {
			return "", err
		}
		return formatTime(t, format), nil

	case !hasRest:
		v, ok := vars[kind]
		if !ok {
			return "", fmt.Errorf("pathtmpl: unknown variable %q", kind)
		}
		return v, nil

	default:
		return "", fmt.Errorf("pathtmpl: unrecognized substitution %q", expr)
	}
}

func randString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randAlphabet[rand.Intn(len(randAlphabet))]
	}
	return string(b)
}

func applyZone(t time.Time, zone string) (time.Time, error) {
	switch {
	case zone == "utc":
		return t.UTC(), nil
	case zone == "local":
		return t.Local(), nil
	case strings.HasPrefix(zone, "offset"):
		rest := strings.TrimPrefix(zone, "offset")
		sign := 1
		if strings.HasPrefix(rest, "-") {
			sign = -1
			rest = rest[1:]
		} else if strings.HasPrefix(rest, "+") {
			rest = rest[1:]
		}
		if len(rest) != 4 {
			return time.Time{}, fmt.Errorf("pathtmpl: bad offset %q", zone)
		}
		hh, err := strconv.Atoi(rest[:2])
		if err != nil {
			return time.Time{}, fmt.Errorf("pathtmpl: bad offset %q", zone)
		}
		mm, err := strconv.Atoi(rest[2:])
		if err != nil {
			return time.Time{}, fmt.Errorf("pathtmpl: bad offset %q", zone)
		}
		secs := sign * (hh*3600 + mm*60)
		return t.In(time.FixedZone(zone, secs)), nil
	default:
		return time.Time{}, fmt.Errorf("pathtmpl: unrecognized zone %q", zone)
	}
}

// formatTime renders t according to a sequence of recognized date tokens;
// unrecognized runs of characters pass through literally.
func formatTime(t time.Time, format string) string {
	var out strings.Builder
	i := 0
	for i < len(format) {
		matched := false
		for _, tok := range dateTokensByLength {
			if strings.HasPrefix(format[i:], tok) {
				out.WriteString(renderToken(t, tok))
				i += len(tok)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(format[i])
			i++
		}
	}
	return out.String()
}

// dateTokensByLength is ordered longest-first so e.g. "zhms" matches before "zh".
var dateTokensByLength = []string{
	"yyyy", "mmmm", "zhms", "mmm", "zhm", "yy", "mm", "dd", "wd", "ww",
	"hh", "mi", "ss", "s3", "s6", "s9", "z4", "zh",
}

func renderToken(t time.Time, tok string) string {
	switch tok {
	case "yyyy":
		return fmt.Sprintf("%04d", t.Year())
	case "yy":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "mm":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "mmm":
		return t.Month().String()[:3]
	case "mmmm":
		return t.Month().String()
	case "dd":
		return fmt.Sprintf("%02d", t.Day())
	case "wd":
		return fmt.Sprintf("%d", int(t.Weekday()))
	case "ww":
		_, week := t.ISOWeek()
		return fmt.Sprintf("%02d", week)
	case "hh":
		return fmt.Sprintf("%02d", t.Hour())
	case "mi":
		return fmt.Sprintf("%02d", t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "s3":
		return fmt.Sprintf("%03d", t.Nanosecond()/1_000_000)
	case "s6":
		return fmt.Sprintf("%06d", t.Nanosecond()/1_000)
	case "s9":
		return fmt.Sprintf("%09d", t.Nanosecond())
	case "z4":
		_, offset := t.Zone()
		sign := "+"
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		return fmt.Sprintf("%s%02d%02d", sign, offset/3600, (offset%3600)/60)
	case "zh":
		_, offset := t.Zone()
		sign := "+"
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		return fmt.Sprintf("%s%02d", sign, offset/3600)
	case "zhm":
		_, offset := t.Zone()
		sign := "+"
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		return fmt.Sprintf("%s%02d:%02d", sign, offset/3600, (offset%3600)/60)
	case "zhms":
		_, offset := t.Zone()
		sign := "+"
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, offset/3600, (offset%3600)/60, offset%60)
	default:
		return tok
	}
}
