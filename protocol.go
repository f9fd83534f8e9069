package txcache

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"
)

const (
	MaxKeySize         = 250
	MaxItemSize        = 128 * (1 << 20) // 128 MB.
	DefaultMaxItemSize = 1 << 20
	MaxCommandSize     = 1 << 12

	Separator = "\r\n"

	SetCommand      = "set"
	GetCommand      = "get"
	GetsCommand     = "gets"
	ContainsCommand = "contains"
	BeginCommand    = "begin"
	EndCommand      = "end"

	NoReplyOption = "noreply"

	StoredResponse      = "STORED"
	ValueResponse       = "VALUE"
	EndResponse         = "END"
	FoundResponse       = "FOUND"
	NotFoundResponse    = "NOT_FOUND"
	OKResponse          = "OK"
	ErrorResponse       = "ERROR"
	ClientErrorResponse = "CLIENT_ERROR"
	ServerErrorResponse = "SERVER_ERROR"

	// Implementation specific consts.
	InBufferSize  = 16 * (1 << 10)
	OutBufferSize = 16 * (1 << 10)
)

var _ = func() (_ struct{}) {
	if MaxCommandSize > InBufferSize {
		panic("max command should fit in input buffer")
	}
	return
}()

var (
	ErrTooLargeKey           = errors.New("too large key")
	ErrTooLargeItem          = errors.New("too large item")
	ErrInvalidOption         = errors.New("invalid option")
	ErrTooManyFields         = errors.New("too many fields")
	ErrMoreFieldsRequired    = errors.New("more fields required")
	ErrTooLargeCommand       = errors.New("command length is too big")
	ErrEmptyCommand          = errors.New("empty command")
	ErrFieldsParseError      = errors.New("fields parse error")
	ErrInvalidLineSeparator  = errors.New("invalid line separator")
	ErrInvalidCharInKey      = errors.New("key contains invalid characters")
	ErrExpirationUnsupported = errors.New("expiration is not supported")

	separatorBytes = []byte(Separator)
)

// SetMeta is parsed set command.
type SetMeta struct {
	Key     string
	Flags   uint32
	Exptime int64
	Bytes   int
}

func isInvalidFieldChar(b byte) bool {
	return b <= ' ' || b == 127
}

func checkKey(p []byte) error {
	if len(p) == 0 {
		return stackerr.Wrap(ErrMoreFieldsRequired)
	}
	if len(p) > MaxKeySize {
		return stackerr.Wrap(ErrTooLargeKey)
	}
	for _, b := range p {
		if isInvalidFieldChar(b) {
			return stackerr.Wrap(ErrInvalidCharInKey)
		}
	}
	return nil
}

func parseKey(p []byte) (key string, err error) {
	err = checkKey(p)
	if err != nil {
		return
	}
	key = string(p)
	return
}

func parseSetFields(fields [][]byte) (m SetMeta, noreply bool, err error) {
	const extraRequired = 3
	var key []byte
	var extra [][]byte
	key, extra, noreply, err = parseKeyFields(fields, extraRequired)
	if err != nil {
		return
	}
	m.Key, err = parseKey(key)
	if err != nil {
		return
	}
	var parsed [extraRequired]uint64
	for i, f := range extra {
		parsed[i], err = strconv.ParseUint(string(f), 10, 32)
		if err != nil {
			err = stackerr.Newf("%s: %s", ErrFieldsParseError, err)
			return
		}
	}
	m.Flags = uint32(parsed[0])
	m.Exptime = int64(parsed[1])
	m.Bytes = int(parsed[2])
	if m.Bytes > MaxItemSize {
		err = stackerr.Wrap(ErrTooLargeItem)
	}
	return
}

func parseKeyFields(fields [][]byte, extraRequired int) (key []byte, extra [][]byte, noreply bool, err error) {
	if len(fields) < 1+extraRequired {
		err = stackerr.Wrap(ErrMoreFieldsRequired)
		return
	}
	key = fields[0]
	extra = fields[1:][:extraRequired]
	options := fields[1:][extraRequired:]
	const maxOptions = 1
	if len(options) > maxOptions {
		err = stackerr.Wrap(ErrTooManyFields)
		return
	}
	if len(options) != 0 {
		if string(options[0]) != NoReplyOption {
			err = stackerr.Wrap(ErrInvalidOption)
			return
		}
		noreply = true
	}
	return
}

type reader struct {
	*bufio.Reader
}

func newReader(r io.Reader) reader {
	return reader{bufio.NewReaderSize(r, InBufferSize)}
}

// WARN: retuned byte slices points into read buffed and invalidated after next read.
func (r reader) readCommand() (command []byte, fields [][]byte, clientErr, err error) {
	var lineWithSeparator []byte
	// We accept only "\r\n" separator, so can't use ReadLine here.
	lineWithSeparator, err = r.ReadSlice('\n')
	if err == bufio.ErrBufferFull || err == nil && len(lineWithSeparator) > MaxCommandSize {
		clientErr = stackerr.Wrap(ErrTooLargeCommand)
		if err == nil {
			return
		}
		err = r.discardCommand()
		return
	}
	if err == io.EOF {
		if len(lineWithSeparator) != 0 {
			err = stackerr.Wrap(io.ErrUnexpectedEOF)
		}
		return
	}
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	if !bytes.HasSuffix(lineWithSeparator, separatorBytes) {
		clientErr = stackerr.Wrap(ErrInvalidLineSeparator)
		return
	}
	line := bytes.TrimSuffix(lineWithSeparator, separatorBytes)
	split := bytes.Fields(line)
	if len(split) == 0 {
		clientErr = stackerr.Wrap(ErrEmptyCommand)
		return
	}
	command = split[0]
	fields = split[1:]
	return
}

// readDataBlock reads size bytes of data and separator after them.
// Returned data is not retained by reader.
func (r reader) readDataBlock(size int) (data []byte, clientErr, err error) {
	data = make([]byte, size)
	_, err = io.ReadFull(r, data)
	if err != nil {
		data = nil
		err = stackerr.Wrap(err)
		return
	}
	var sep []byte
	sep, err = r.ReadSlice('\n')
	if err != nil {
		data = nil
		err = stackerr.Wrap(err)
		return
	}
	if !bytes.Equal(sep, separatorBytes) {
		data = nil
		clientErr = stackerr.Wrap(ErrInvalidLineSeparator)
	}
	return
}

// discardCommand discard all input untill next separator.
func (r reader) discardCommand() error {
	for {
		lineWithSeparator, err := r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return stackerr.Wrap(err)
		}
		if !bytes.HasSuffix(lineWithSeparator, separatorBytes) {
			continue
		}
		return nil
	}
}
