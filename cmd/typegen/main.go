// Command typegen parses the session protocol and settings structs and
// generates the TypeScript declarations used by the browser extension and
// the operator UI. Run from the project root:
//
//	go run ./cmd/typegen -out extension/src/types/generated.ts
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
)

type structInfo struct {
	name   string
	fields []fieldInfo
}

type fieldInfo struct {
	jsonName string
	tsType   string
	optional bool
}

// sourceDirs are the packages whose structs cross the wire.
var sourceDirs = []string{
	"protocol",
	"factories",
	"handlers/gloss",
	"handlers/playback",
	"handlers/stt",
	"gloss",
	"playback",
	"services/deepgram/stt",
	"services/openai/stt",
	"transports/websocket",
}

var typeMapping = map[string]string{
	"string":            "string",
	"int":               "number",
	"int64":             "number",
	"uint64":            "number",
	"float64":           "number",
	"bool":              "boolean",
	"any":               "unknown",
	"interface{}":       "unknown",
	"json.RawMessage":   "unknown",
	"time.Time":         "string",
	"time.Duration":     "number", // nanoseconds
	"map[string]string": "Record<string, string>",
}

// structsToGenerate lists "dir:Struct" keys in output order. The TS name
// follows the arrow when it differs from the Go name.
var structsToGenerate = []string{
	// Extension session messages
	"protocol:TranscriptPayload",
	"protocol:GlossFinishedPayload",
	"protocol:LetterFinishedPayload",
	"protocol:SetSpeedPayload",
	"protocol:CaptureErrorPayload",
	"protocol:AudioFormatPayload",
	"protocol:ConfigurePayload",
	"protocol:PlayPayload",
	"protocol:PlayLetterPayload",
	"protocol:WordDetectedPayload",
	"protocol:TranscriptUpdatePayload",
	"protocol:SessionStatusPayload",
	"protocol:DemoCaptionPayload",
	// Operator UI
	"protocol:SessionInfo",
	"protocol:LogEntry",
	// Settings
	"factories:SettingsConfig -> Settings",
	"factories:SessionAPIConfig -> SessionApiConfig",
	"factories:SessionConfig",
	"factories:SessionSTTConfig -> SttConfig",
	"factories:STTFactoryConfig -> SttServiceConfig",
	"transports/websocket:Config -> ServerConfig",
	"handlers/stt:STTConfig -> SttHandlerConfig",
	"handlers/gloss:Config -> GlossConfig",
	"handlers/playback:Config -> PlaybackHandlerConfig",
	"gloss:CooldownConfig",
	"playback:Config -> SchedulerConfig",
	"services/deepgram/stt:DeepgramConfig -> DeepgramSttConfig",
	"services/openai/stt:Config -> WhisperSttConfig",
}

// requiredFields keeps identity fields required; everything else is
// optional because the server applies defaults.
var requiredFields = map[string]map[string]bool{
	"SessionInfo":          {"session_id": true, "started_at": true, "status": true},
	"LogEntry":             {"ts": true, "level": true, "msg": true},
	"PlayPayload":          {"gloss": true, "speed": true, "play_id": true},
	"PlayLetterPayload":    {"letter": true, "index": true, "word": true, "play_id": true},
	"SessionStatusPayload": {"state": true},
}

// inbound and outbound pair each extension message type with its payload.
var inbound = [][2]string{
	{"transcript", "TranscriptPayload"},
	{"gloss_finished", "GlossFinishedPayload"},
	{"clip_missing", "GlossFinishedPayload"},
	{"letter_finished", "LetterFinishedPayload"},
	{"set_speed", "SetSpeedPayload"},
	{"start_demo", ""},
	{"start_live", ""},
	{"stop", ""},
	{"capture_error", "CaptureErrorPayload"},
	{"configure", "ConfigurePayload"},
}

var outbound = [][2]string{
	{"play", "PlayPayload"},
	{"play_letter", "PlayLetterPayload"},
	{"stop", ""},
	{"word_detected", "WordDetectedPayload"},
	{"transcript_update", "TranscriptUpdatePayload"},
	{"status", "SessionStatusPayload"},
	{"demo_caption", "DemoCaptionPayload"},
	{"demo_complete", ""},
}

type target struct {
	key    string // dir:Struct
	goName string
	tsName string
}

func parseTargets() []target {
	out := make([]target, 0, len(structsToGenerate))
	for _, entry := range structsToGenerate {
		key, tsName, _ := strings.Cut(entry, " -> ")
		_, goName, _ := strings.Cut(key, ":")
		if tsName == "" {
			tsName = goName
		}
		out = append(out, target{key: key, goName: goName, tsName: tsName})
	}
	return out
}

type generator struct {
	structs   map[string]*structInfo // dir:Struct
	aliases   map[string]string      // named type -> underlying
	constVals map[string][]string    // named type -> string consts
	tsRefs    map[string]string      // dir:Struct and Struct -> TS name
}

func main() {
	outPath := flag.String("out", "extension/src/types/generated.ts", "output TypeScript file path")
	flag.Parse()

	root, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}

	g := &generator{
		structs:   map[string]*structInfo{},
		aliases:   map[string]string{},
		constVals: map[string][]string{},
		tsRefs:    map[string]string{},
	}
	targets := parseTargets()
	for _, t := range targets {
		g.tsRefs[t.key] = t.tsName
		if _, taken := g.tsRefs[t.goName]; !taken {
			g.tsRefs[t.goName] = t.tsName
		}
	}

	// Parse every file first so aliases and consts are known before field
	// types are resolved.
	files := map[string][]*ast.File{}
	for _, dir := range sourceDirs {
		parsed, err := parseDir(filepath.Join(root, dir))
		if err != nil {
			fatal("parse %s: %v", dir, err)
		}
		files[dir] = parsed
		g.collectNamedTypes(parsed)
	}
	for _, dir := range sourceDirs {
		g.collectStructs(dir, files[dir])
	}

	var buf bytes.Buffer
	buf.WriteString("// Code generated by cmd/typegen; DO NOT EDIT.\n")
	buf.WriteString("// Regenerate: go run ./cmd/typegen -out extension/src/types/generated.ts\n\n")

	if vals := g.constVals["MessageType"]; len(vals) > 0 {
		fmt.Fprintf(&buf, "export type MessageType = %s\n\n", buildUnionLiteral(vals))
	}
	for _, t := range targets {
		si, ok := g.structs[t.key]
		if !ok {
			fmt.Fprintf(os.Stderr, "warning: struct %q not found, skipping\n", t.key)
			continue
		}
		writeInterface(&buf, t, si)
	}
	writeMessageUnion(&buf, "InboundMessage", inbound)
	writeMessageUnion(&buf, "OutboundMessage", outbound)

	absOut := *outPath
	if !filepath.IsAbs(absOut) {
		absOut = filepath.Join(root, absOut)
	}
	if err := os.MkdirAll(filepath.Dir(absOut), 0o755); err != nil {
		fatal("mkdir: %v", err)
	}
	if err := os.WriteFile(absOut, buf.Bytes(), 0o644); err != nil {
		fatal("write: %v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", absOut, buf.Len())
}

func parseDir(dir string) ([]*ast.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var files []*ast.File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// collectNamedTypes records `type X string` style declarations and the
// string constants declared with them.
func (g *generator) collectNamedTypes(files []*ast.File) {
	for _, file := range files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if ident, ok := s.Type.(*ast.Ident); ok {
						g.aliases[s.Name.Name] = ident.Name
					}
				case *ast.ValueSpec:
					if gd.Tok != token.CONST || s.Type == nil {
						continue
					}
					typeName := typeExprToString(s.Type)
					for _, val := range s.Values {
						lit, ok := val.(*ast.BasicLit)
						if !ok || lit.Kind != token.STRING {
							continue
						}
						g.constVals[typeName] = append(g.constVals[typeName], strings.Trim(lit.Value, "\""))
					}
				}
			}
		}
	}
}

func (g *generator) collectStructs(dir string, files []*ast.File) {
	for _, file := range files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if st, ok := ts.Type.(*ast.StructType); ok {
					g.structs[dir+":"+ts.Name.Name] = g.parseStruct(ts.Name.Name, st)
				}
			}
		}
	}
}

func (g *generator) parseStruct(name string, st *ast.StructType) *structInfo {
	si := &structInfo{name: name}
	for _, field := range st.Fields.List {
		if field.Tag == nil {
			continue
		}
		tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		parts := strings.Split(tag.Get("json"), ",")
		jsonName := parts[0]
		if jsonName == "" || jsonName == "-" || isSecret(jsonName) {
			continue
		}
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				omitempty = true
			}
		}
		_, isPointer := field.Type.(*ast.StarExpr)
		si.fields = append(si.fields, fieldInfo{
			jsonName: jsonName,
			tsType:   g.resolveType(typeExprToString(field.Type)),
			optional: omitempty || isPointer,
		})
	}
	return si
}

// API keys come from the environment or the key store, never settings
// files.
func isSecret(jsonName string) bool {
	return jsonName == "api_key" || strings.HasSuffix(jsonName, "_secret")
}

func typeExprToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeExprToString(t.X)
	case *ast.ArrayType:
		return "[]" + typeExprToString(t.Elt)
	case *ast.MapType:
		return "map[" + typeExprToString(t.Key) + "]" + typeExprToString(t.Value)
	case *ast.SelectorExpr:
		return typeExprToString(t.X) + "." + t.Sel.Name
	case *ast.InterfaceType:
		return "interface{}"
	default:
		return "unknown"
	}
}

func (g *generator) resolveType(goType string) string {
	clean := strings.TrimPrefix(goType, "*")
	if ts, ok := typeMapping[clean]; ok {
		return ts
	}
	if strings.HasPrefix(clean, "[]") {
		return g.resolveType(clean[2:]) + "[]"
	}
	if strings.HasPrefix(clean, "map[") {
		return "Record<string, unknown>"
	}
	// Qualified references (websocket.Config, glosshandler.Config) are
	// resolved by the package directory's last element.
	if pkg, name, ok := strings.Cut(clean, "."); ok {
		for key, tsName := range g.tsRefs {
			dir, structName, found := strings.Cut(key, ":")
			if found && structName == name && (filepath.Base(dir) == pkg || strings.TrimSuffix(pkg, "handler") == filepath.Base(dir)) {
				return tsName
			}
		}
		clean = name
	}
	if tsName, ok := g.tsRefs[clean]; ok {
		return tsName
	}
	if vals := g.constVals[clean]; len(vals) > 0 {
		return buildUnionLiteral(vals)
	}
	if underlying, ok := g.aliases[clean]; ok {
		return g.resolveType(underlying)
	}
	return "unknown"
}

func buildUnionLiteral(vals []string) string {
	uniq := append([]string(nil), vals...)
	sort.Strings(uniq)
	quoted := make([]string, 0, len(uniq))
	for i, v := range uniq {
		if i > 0 && uniq[i-1] == v {
			continue
		}
		quoted = append(quoted, "'"+v+"'")
	}
	return strings.Join(quoted, " | ")
}

func writeInterface(buf *bytes.Buffer, t target, si *structInfo) {
	required := requiredFields[t.goName]
	fmt.Fprintf(buf, "/** Generated from Go struct: %s */\n", t.key)
	fmt.Fprintf(buf, "export interface %s {\n", t.tsName)
	for _, f := range si.fields {
		opt := "?"
		if required[f.jsonName] || (!f.optional && required == nil && strings.HasSuffix(t.goName, "Payload")) {
			opt = ""
		}
		fmt.Fprintf(buf, "  %s%s: %s\n", f.jsonName, opt, f.tsType)
	}
	buf.WriteString("}\n\n")
}

// writeMessageUnion emits a discriminated union over the message envelope.
func writeMessageUnion(buf *bytes.Buffer, name string, pairs [][2]string) {
	fmt.Fprintf(buf, "export type %s =\n", name)
	for i, p := range pairs {
		payload := ""
		if p[1] != "" {
			payload = "; payload: " + p[1]
		}
		sep := ""
		if i == len(pairs)-1 {
			sep = "\n"
		}
		fmt.Fprintf(buf, "  | { type: '%s'%s }%s\n", p[0], payload, sep)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "typegen: "+format+"\n", args...)
	os.Exit(1)
}
