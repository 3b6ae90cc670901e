// Command bplist dumps binary property lists as JSON, YAML or Go syntax.
package main

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/kr/pretty"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v2"

	bplist "github.com/zdypro888/go-bplist"
)

type options struct {
	Format     string `short:"o" long:"format" default:"json" choice:"json" choice:"yaml" choice:"go" description:"output format"`
	Permissive bool   `short:"p" long:"permissive" description:"accept documents without a bplist00 header"`
	MaxDepth   int    `long:"max-depth" default:"512" description:"deepest container nesting to accept"`
	Archive    bool   `short:"a" long:"archive" description:"resolve an NSKeyedArchiver document from its root object"`
	Gzip       bool   `short:"z" long:"gzip" description:"input is gzip compressed"`
	Verbose    bool   `short:"v" long:"verbose" description:"log decoder details"`
	Indent     int    `long:"indent" default:"2" description:"JSON indent width"`

	Args struct {
		Files []string `positional-arg-name:"FILE"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] [FILE...]"
	if _, err := parser.ParseArgs(args); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, ferr.Message)
			return 0
		}
		fmt.Fprintln(stderr, "bplist:", err)
		return 2
	}

	log := newLogger(stderr, opts.Verbose)
	defer log.Sync()

	files := opts.Args.Files
	if len(files) == 0 {
		files = []string{"-"}
	}
	status := 0
	for _, name := range files {
		if err := dump(name, stdin, stdout, &opts, log); err != nil {
			log.Error("cannot dump property list", zap.String("file", name), zap.Error(err))
			status = 1
		}
	}
	return status
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	encoder := zap.NewProductionEncoderConfig()
	if verbose {
		level = zap.DebugLevel
		encoder = zap.NewDevelopmentEncoderConfig()
	}
	encoder.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoder), zapcore.AddSync(w), level)
	return zap.New(core)
}

func dump(name string, stdin io.Reader, stdout io.Writer, opts *options, log *zap.Logger) error {
	data, err := readInput(name, stdin, opts.Gzip)
	if err != nil {
		return err
	}
	decodeOpts := []bplist.Option{
		bplist.WithPermissive(opts.Permissive),
		bplist.WithMaxDepth(opts.MaxDepth),
		bplist.WithLogger(log.With(zap.String("file", name))),
	}

	var pval interface{}
	if opts.Archive {
		archive, err := bplist.ReadArchive(data, decodeOpts...)
		if err != nil {
			return err
		}
		if pval, err = archive.Root(); err != nil {
			return err
		}
	} else if pval, err = bplist.Decode(data, decodeOpts...); err != nil {
		return err
	}
	return render(stdout, pval, opts)
}

func readInput(name string, stdin io.Reader, gunzip bool) ([]byte, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = ioutil.ReadAll(stdin)
	} else {
		data, err = ioutil.ReadFile(name)
	}
	if err != nil || !gunzip {
		return data, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ioutil.ReadAll(zr)
}

func render(w io.Writer, pval interface{}, opts *options) error {
	switch opts.Format {
	case "yaml":
		out, err := yaml.Marshal(plain(pval, true))
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "go":
		_, err := fmt.Fprintf(w, "%# v\n", pretty.Formatter(plain(pval, false)))
		return err
	}
	out, err := json.MarshalIndent(pval, "", strings.Repeat(" ", opts.Indent))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

// plain rewrites a decoded tree into values the YAML and Go printers render
// readably. Dictionaries become yaml.MapSlice so entry order survives.
func plain(v interface{}, textual bool) interface{} {
	switch pval := v.(type) {
	case *bplist.Dictionary:
		return plainEntries(pval, yaml.MapSlice{}, textual)
	case *bplist.ArchivedObject:
		head := yaml.MapSlice{{Key: "$class", Value: pval.Class}}
		return plainEntries(pval.Fields, head, textual)
	case []interface{}:
		out := make([]interface{}, len(pval))
		for i, e := range pval {
			out[i] = plain(e, textual)
		}
		return out
	case bplist.Integer:
		if u, ok := pval.Uint64(); ok {
			return u
		}
		return pval.String()
	case bplist.UID:
		if textual {
			return yaml.MapSlice{{Key: "UID", Value: uint64(pval)}}
		}
		return pval
	case bplist.WideUID:
		return yaml.MapSlice{{Key: "UID", Value: pval.Integer.String()}}
	case []byte:
		if textual {
			return base64.StdEncoding.EncodeToString(pval)
		}
		return pval
	case time.Time:
		return pval.Format(time.RFC3339Nano)
	case uuid.UUID:
		return pval.String()
	}
	return v
}

func plainEntries(d *bplist.Dictionary, out yaml.MapSlice, textual bool) yaml.MapSlice {
	for i := 0; i < d.Len(); i++ {
		out = append(out, yaml.MapItem{
			Key:   plain(d.KeyAt(i), textual),
			Value: plain(d.ValueAt(i), textual),
		})
	}
	return out
}
