package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/newer"
)

// PathVars are the fields available to a map template.
type PathVars struct {
	Dest     string
	Path     string
	Relative string
	Dir      string
	Base     string
	Stem     string
	Ext      string
}

func newPathVars(dest string, src *newer.Source) PathVars {
	rel := filepath.ToSlash(src.Relative)
	base := filepath.Base(src.Relative)
	ext := filepath.Ext(base)
	return PathVars{
		Dest:     dest,
		Path:     src.Path,
		Relative: rel,
		Dir:      filepath.ToSlash(filepath.Dir(src.Relative)),
		Base:     base,
		Stem:     strings.TrimSuffix(base, ext),
		Ext:      ext,
	}
}

var templateFuncs = template.FuncMap{
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"replace":    strings.ReplaceAll,
	"trimSuffix": func(suffix, s string) string { return strings.TrimSuffix(s, suffix) },
	"trimPrefix": func(prefix, s string) string { return strings.TrimPrefix(s, prefix) },
}

// CompileMap turns a text/template into a destination mapper, for example
//
//	{{.Dest}}/{{.Dir}}/{{.Stem}}.min{{.Ext}}
//
// The template is executed once against sample values so unknown fields fail
// here instead of during a run. A source the template fails on, or renders
// to an empty path, maps to "" and is rejected by the filter.
func CompileMap(text string) (newer.MapFunc, error) {
	tmpl, err := template.New("map").Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}

	sample := &newer.Source{Path: "/src/dir/file.txt", Relative: filepath.Join("dir", "file.txt")}
	if _, err := render(tmpl, "out", sample); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}

	return func(dest string, src *newer.Source) string {
		out, err := render(tmpl, dest, src)
		if err != nil {
			log.Component("config").Warn("map template failed", "source", src.Path, "error", err)
			return ""
		}
		return out
	}, nil
}

func render(tmpl *template.Template, dest string, src *newer.Source) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newPathVars(dest, src)); err != nil {
		return "", err
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("template produced an empty path")
	}
	return filepath.Clean(filepath.FromSlash(out)), nil
}
