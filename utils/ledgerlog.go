package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"
	zerolog "github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LOG_TRACE = iota
	LOG_DEBUG
	LOG_INFO
	LOG_WARN
	LOG_ERROR
	LOG_FATAL
	LOG_PANIC
	NoColor = true
)

var (
	JsonFormat = false

	loggerLock            sync.RWMutex
	stderrLogger          zerolog.Logger
	stderrLoggerReady     bool
	rollingLogLogger      = zerolog.New(os.Stderr).Level(zerolog.Disabled) // singleton rolling logger, disabled until set up
	defaultGlobalLogLevel = zerolog.InfoLevel
)

type Attribute struct {
	Key   string
	Value interface{}
}

func LogAttr(key string, value interface{}) Attribute {
	return Attribute{Key: key, Value: value}
}

func getLogLevel(logLevel string) (zerolog.Level, bool) {
	switch logLevel {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "fatal":
		return zerolog.FatalLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}

// SetGlobalLoggingLevel sets the stderr level, unknown names fall back to info.
func SetGlobalLoggingLevel(logLevel string) {
	level, _ := getLogLevel(logLevel)
	loggerLock.Lock()
	defaultGlobalLogLevel = level
	stderrLoggerReady = false
	loggerLock.Unlock()
	FormatInfo("setting log level", LogAttr("loglevel", logLevel))
}

// SetJsonFormat switches stderr output between console and json.
func SetJsonFormat(enabled bool) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	JsonFormat = enabled
	stderrLoggerReady = false
}

// RollingLoggerSetup writes a second copy of the log into a size rotated file.
// The returned function closes the file.
func RollingLoggerSetup(rollingLogLevel string, filePath string, maxSizeMB int, maxBackups int, maxAgeDays int, format string) (func(), error) {
	if rollingLogLevel == "off" || filePath == "" {
		return func() {}, nil
	}
	logLevel, ok := getLogLevel(rollingLogLevel)
	if !ok {
		return nil, FormatError("unsupported rolling log level", nil, LogAttr("rollingLogLevel", rollingLogLevel))
	}
	rollingLogOutput := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	loggerLock.Lock()
	if format == "json" {
		rollingLogLogger = zerolog.New(rollingLogOutput).Level(logLevel).With().Timestamp().Logger()
	} else {
		rollingLogLogger = zerolog.New(zerolog.ConsoleWriter{Out: rollingLogOutput, NoColor: NoColor, TimeFormat: time.Stamp}).Level(logLevel).With().Timestamp().Logger()
	}
	loggerLock.Unlock()
	rollingLogLogger.Debug().Msg("Starting Rolling Logger")
	return func() { rollingLogOutput.Close() }, nil
}

func loggers() (zerolog.Logger, zerolog.Logger) {
	loggerLock.RLock()
	if stderrLoggerReady {
		defer loggerLock.RUnlock()
		return stderrLogger, rollingLogLogger
	}
	loggerLock.RUnlock()

	loggerLock.Lock()
	defer loggerLock.Unlock()
	if !stderrLoggerReady {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		if JsonFormat {
			stderrLogger = zerolog.New(os.Stderr).Level(defaultGlobalLogLevel).With().Timestamp().Logger()
		} else {
			stderrLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: NoColor, TimeFormat: time.Stamp}).Level(defaultGlobalLogLevel).With().Timestamp().Logger()
		}
		stderrLoggerReady = true
	}
	return stderrLogger, rollingLogLogger
}

func strValueForLog(val interface{}, key string, idx int, attributes []Attribute) string {
	switch value := val.(type) {
	case context.Context:
		// never print a whole context, only its GUID
		if key == "GUID" {
			guid, found := GetUniqueIdentifier(value)
			if found {
				attributes[idx] = Attribute{Key: key, Value: guid}
				return strconv.FormatUint(guid, 10)
			}
			attributes[idx] = Attribute{Key: key, Value: "no-guid"}
			return "no-guid"
		}
		attributes[idx] = Attribute{Key: key, Value: "context-masked"}
		return ""
	default:
		return StrValue(val)
	}
}

func StrValue(val interface{}) string {
	switch value := val.(type) {
	case context.Context:
		return ""
	case bool:
		return strconv.FormatBool(value)
	case fmt.Stringer:
		return value.String()
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case uint64:
		return strconv.FormatUint(value, 10)
	case error:
		return value.Error()
	case []error:
		st := ""
		for _, err := range value {
			if err == nil {
				continue
			}
			st += err.Error() + ";"
		}
		return st
	case []string:
		return strings.Join(value, ",")
	case []byte:
		return fmt.Sprintf("%x", value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%+v", value)
	}
}

// FormatLog writes the description and attributes at the given severity and returns
// err wrapped with the same text. The wrap keeps errors.Is and errors.As working on the
// wrapped chain. A nil err still yields a non nil error.
func FormatLog(description string, err error, attributes []Attribute, severity uint) error {
	stderr, rolling := loggers()

	var logEvent *zerolog.Event
	var rollingLoggerEvent *zerolog.Event
	switch severity {
	case LOG_PANIC:
		logEvent = stderr.Panic()
		if rolling.GetLevel() != zerolog.Disabled {
			rollingLoggerEvent = rolling.Panic()
		}
	case LOG_FATAL:
		logEvent = stderr.Fatal()
		if rolling.GetLevel() != zerolog.Disabled {
			rollingLoggerEvent = rolling.Fatal()
		}
	case LOG_ERROR:
		logEvent = stderr.Error()
		rollingLoggerEvent = rolling.Error()
	case LOG_WARN:
		logEvent = stderr.Warn()
		rollingLoggerEvent = rolling.Warn()
	case LOG_INFO:
		logEvent = stderr.Info()
		rollingLoggerEvent = rolling.Info()
	case LOG_DEBUG:
		logEvent = stderr.Debug()
		rollingLoggerEvent = rolling.Debug()
	default:
		logEvent = stderr.Trace()
		rollingLoggerEvent = rolling.Trace()
	}
	output := description
	if err != nil {
		logEvent = logEvent.Err(err)
		rollingLoggerEvent = rollingLoggerEvent.Err(err)
		output = fmt.Sprintf("%s ErrMsg: %s", output, err.Error())
	}
	if len(attributes) > 0 {
		attrStrings := make([]string, 0, len(attributes))
		for idx, attr := range attributes {
			stVal := strValueForLog(attr.Value, attr.Key, idx, attributes)
			logEvent = logEvent.Str(attr.Key, stVal)
			rollingLoggerEvent = rollingLoggerEvent.Str(attr.Key, stVal)
			attrStrings = append(attrStrings, fmt.Sprintf("%s:%s", attr.Key, stVal))
		}
		output = fmt.Sprintf("%s {%s}", output, strings.Join(attrStrings, ","))
	}
	logEvent.Msg(description)
	rollingLoggerEvent.Msg(description)
	errRet := sdkerrors.Wrap(err, output)
	if errRet == nil {
		return fmt.Errorf("%s", output)
	}
	return errRet
}

func FormatPanic(description string, err error, attributes ...Attribute) {
	attributes = append(attributes, Attribute{Key: "StackTrace", Value: string(debug.Stack())})
	FormatLog(description, err, attributes, LOG_PANIC)
}

func FormatFatal(description string, err error, attributes ...Attribute) {
	attributes = append(attributes, Attribute{Key: "StackTrace", Value: string(debug.Stack())})
	FormatLog(description, err, attributes, LOG_FATAL)
}

func FormatError(description string, err error, attributes ...Attribute) error {
	return FormatLog(description, err, attributes, LOG_ERROR)
}

func FormatWarning(description string, err error, attributes ...Attribute) error {
	return FormatLog(description, err, attributes, LOG_WARN)
}

func FormatInfo(description string, attributes ...Attribute) error {
	return FormatLog(description, nil, attributes, LOG_INFO)
}

func FormatDebug(description string, attributes ...Attribute) error {
	return FormatLog(description, nil, attributes, LOG_DEBUG)
}

func FormatTrace(description string, attributes ...Attribute) error {
	return FormatLog(description, nil, attributes, LOG_TRACE)
}

func IsTraceLogLevelEnabled() bool {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return defaultGlobalLogLevel == zerolog.TraceLevel
}

func FormatStringerList[T fmt.Stringer](description string, listToPrint []T, separator string) string {
	st := ""
	for _, printable := range listToPrint {
		st = st + separator + printable.String() + "\n"
	}
	return fmt.Sprintf(description+"\n\t%s", st)
}
