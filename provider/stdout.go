package provider

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/devopsext/greeter/common"
	"github.com/sirupsen/logrus"
)

type StdoutOptions struct {
	Format          string
	Level           string
	Template        string
	TimestampFormat string
	Version         string
	TextColors      bool
	Output          string
}

type Stdout struct {
	log          *logrus.Logger
	options      StdoutOptions
	callerOffset int
}

type templateFormatter struct {
	template        *template.Template
	timestampFormat string
}

func (f *templateFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	r := entry.Message
	m := make(map[string]interface{})

	for k, v := range entry.Data {
		switch v := v.(type) {
		case error:
			m[k] = v.Error()
		default:
			m[k] = v
		}
	}

	m["msg"] = entry.Message
	m["time"] = entry.Time.Format(f.timestampFormat)
	m["level"] = entry.Level.String()

	var b bytes.Buffer
	if err := f.template.Execute(&b, m); err != nil {
		return []byte(r + "\n"), err
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (so *Stdout) fields(offset int) logrus.Fields {

	function, file, line := common.GetCallerInfo(so.callerOffset + offset)
	fields := logrus.Fields{
		"file": fmt.Sprintf("%s:%d", file, line),
		"func": function,
	}
	if !common.IsEmpty(so.options.Version) {
		fields["version"] = so.options.Version
	}
	return fields
}

// message renders obj and reports whether it should be logged at level.
// Only string messages are treated as format strings.
func (so *Stdout) message(level logrus.Level, obj interface{}, args ...interface{}) (bool, string) {

	if obj == nil || !so.log.IsLevelEnabled(level) {
		return false, ""
	}

	message := ""

	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
		if len(args) > 0 {
			message = fmt.Sprintf(v, args...)
		}
	case []byte:
		message = string(v)
	case fmt.Stringer:
		message = v.String()
	default:
		message = fmt.Sprintf("%v", v)
	}
	return message != "", message
}

func (so *Stdout) Info(obj interface{}, args ...interface{}) common.Logger {

	if ok, message := so.message(logrus.InfoLevel, obj, args...); ok {
		so.log.WithFields(so.fields(3)).Infoln(message)
	}
	return so
}

func (so *Stdout) Warn(obj interface{}, args ...interface{}) common.Logger {

	if ok, message := so.message(logrus.WarnLevel, obj, args...); ok {
		so.log.WithFields(so.fields(3)).Warnln(message)
	}
	return so
}

func (so *Stdout) Error(obj interface{}, args ...interface{}) common.Logger {

	if ok, message := so.message(logrus.ErrorLevel, obj, args...); ok {
		so.log.WithFields(so.fields(3)).Errorln(message)
	}
	return so
}

func (so *Stdout) Debug(obj interface{}, args ...interface{}) common.Logger {

	if ok, message := so.message(logrus.DebugLevel, obj, args...); ok {
		so.log.WithFields(so.fields(3)).Debugln(message)
	}
	return so
}

func (so *Stdout) Panic(obj interface{}, args ...interface{}) common.Logger {

	if ok, message := so.message(logrus.PanicLevel, obj, args...); ok {
		so.log.WithFields(so.fields(3)).Panicln(message)
	}
	return so
}

func (so *Stdout) Stack(offset int) common.Logger {
	so.callerOffset = so.callerOffset - offset
	return so
}

func (so *Stdout) SetCallerOffset(offset int) {
	so.callerOffset = offset
}

// SetOutput redirects log records, os.Stdout by default.
func (so *Stdout) SetOutput(w io.Writer) {
	so.log.SetOutput(w)
}

func (so *Stdout) Writer() *io.PipeWriter {
	return so.log.Writer()
}

func newFormatter(options StdoutOptions) (logrus.Formatter, error) {

	switch options.Format {
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: options.TimestampFormat}, nil
	case "template":
		t, err := template.New("").Parse(options.Template)
		if err != nil {
			return nil, err
		}
		return &templateFormatter{template: t, timestampFormat: options.TimestampFormat}, nil
	default:
		return &logrus.TextFormatter{
			TimestampFormat: options.TimestampFormat,
			ForceColors:     options.TextColors,
			FullTimestamp:   true,
		}, nil
	}
}

func newLog(options StdoutOptions) *logrus.Logger {

	log := logrus.New()

	formatter, err := newFormatter(options)
	if err != nil {
		log.Panic(err)
	}
	log.SetFormatter(formatter)

	level, err := logrus.ParseLevel(options.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch options.Output {
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		log.SetOutput(os.Stdout)
	}
	return log
}

func NewStdout(options StdoutOptions) *Stdout {

	log := newLog(options)

	return &Stdout{
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}
