package events

import (
	"bufio"
	"fmt"
	"strings"
)

// ParseProperties reads a properties document: one "key=value" or
// "key: value" per line, '#' and '!' comments, and a trailing backslash to
// continue a value on the next line. Later keys overwrite earlier ones.
func ParseProperties(doc string) (map[string]string, error) {
	props := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(doc))
	lineNo := 0
	var pending strings.Builder
	continued := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimLeft(scanner.Text(), " \t\f")

		if !continued && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}

		if strings.HasSuffix(line, `\`) && !strings.HasSuffix(line, `\\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
			continued = true
			continue
		}
		pending.WriteString(line)
		continued = false

		key, value, err := splitProperty(pending.String())
		pending.Reset()
		if err != nil {
			return nil, fmt.Errorf("properties line %d: %w", lineNo, err)
		}
		props[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}

	if continued {
		key, value, err := splitProperty(pending.String())
		if err != nil {
			return nil, fmt.Errorf("properties line %d: %w", lineNo, err)
		}
		props[key] = value
	}

	return props, nil
}

func splitProperty(line string) (string, string, error) {
	idx := strings.IndexAny(line, "=: \t")
	if idx < 0 {
		return strings.TrimSpace(line), "", nil
	}

	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", fmt.Errorf("missing key in %q", line)
	}

	rest := strings.TrimLeft(line[idx:], " \t")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = rest[1:]
	}
	return key, strings.TrimSpace(rest), nil
}

// FormatProperties renders props as a properties document with keys in the
// given order. Keys missing from order are skipped.
func FormatProperties(props map[string]string, order []string) string {
	var b strings.Builder
	for _, k := range order {
		v, ok := props[k]
		if !ok {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}
