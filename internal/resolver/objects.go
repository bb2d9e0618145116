package resolver

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"scenegen/internal/pkg/errors"
)

// LoadObjectList reads candidate identifiers, one per line. Blank lines and
// lines starting with # are skipped; duplicates keep their first position.
func LoadObjectList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "resolver.objects", "open object list").
			WithField("field", "objects")
	}
	defer f.Close()

	var (
		out  []string
		seen = make(map[string]struct{})
		sc   = bufio.NewScanner(f)
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "resolver.objects", "read object list")
	}
	if len(out) == 0 {
		return nil, errors.ValidationField("objects", fmt.Sprintf("object list %s has no identifiers", path))
	}
	return out, nil
}
