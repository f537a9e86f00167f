package artifact

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

// DescriptionRenderer turns the parameterized description template into the
// final description document.
type DescriptionRenderer interface {
	Render(ctx context.Context, template []byte, hostPath string, mappings map[string]string) ([]byte, error)
}

// ArgRenderer substitutes $(arg name) references in-process. Declared
// <xacro:arg name="..." default="..."/> values apply when no mapping is given.
type ArgRenderer struct{}

var (
	argRefPattern  = regexp.MustCompile(`\$\(arg\s+([A-Za-z_][A-Za-z0-9_]*)\s*\)`)
	argDeclPattern = regexp.MustCompile(`<xacro:arg\s+name="([A-Za-z_][A-Za-z0-9_]*)"\s+default="([^"]*)"\s*/>`)
)

// Render implements DescriptionRenderer.
func (ArgRenderer) Render(_ context.Context, template []byte, _ string, mappings map[string]string) ([]byte, error) {
	values := make(map[string]string, len(mappings))
	for _, m := range argDeclPattern.FindAllSubmatch(template, -1) {
		values[string(m[1])] = string(m[2])
	}
	for k, v := range mappings {
		values[k] = v
	}

	var missing []string
	out := argRefPattern.ReplaceAllFunc(template, func(ref []byte) []byte {
		name := string(argRefPattern.FindSubmatch(ref)[1])
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return []byte(v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("template argument %q is not defined", missing[0])
	}
	return out, nil
}

// XacroRenderer runs the external xacro processor on the template file.
type XacroRenderer struct {
	Command string
}

// Render implements DescriptionRenderer.
func (r XacroRenderer) Render(ctx context.Context, _ []byte, hostPath string, mappings map[string]string) ([]byte, error) {
	command := r.Command
	if command == "" {
		command = "xacro"
	}

	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{hostPath}
	for _, k := range keys {
		args = append(args, k+":="+mappings[k])
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", command, hostPath, err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", command, hostPath, err)
	}
	return out, nil
}

// checkXML verifies data is a well-formed XML document whose root element is root.
func checkXML(data []byte, root string) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	seenRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok && !seenRoot {
			if se.Name.Local != root {
				return fmt.Errorf("root element is <%s>, want <%s>", se.Name.Local, root)
			}
			seenRoot = true
		}
	}
	if !seenRoot {
		return errors.New("document has no root element")
	}
	return nil
}
