package txcache

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"

	"github.com/skipor/txcache/cache"
	"github.com/skipor/txcache/internal/util"
	"github.com/skipor/txcache/log"
)

// conn serves one client connection. Connection is transaction owner:
// transaction begun by connection is ended only by it, or on its close.
type conn struct {
	reader
	*bufio.Writer
	closer io.Closer
	*ConnMeta
	log log.Logger
	// baseCtx is ctx out of transaction.
	baseCtx context.Context
	// ctx is passed to all cache calls. While transaction is open, it is
	// transaction owner context.
	ctx           context.Context
	inTransaction bool
}

func newConn(ctx context.Context, l log.Logger, m *ConnMeta, rwc io.ReadWriteCloser) *conn {
	return &conn{
		reader:   newReader(rwc),
		Writer:   bufio.NewWriterSize(rwc, OutBufferSize),
		closer:   rwc,
		ConnMeta: m,
		log:      l,
		baseCtx:  ctx,
		ctx:      ctx,
	}
}

func (c *conn) serve() {
	c.log.Debug("Serve connection.")
	defer func() {
		if r := recover(); r != nil {
			c.serverError(stackerr.Newf("Panic: %s", r))
			c.releaseTransaction()
			c.Close()
			panic(r)
		}
		c.releaseTransaction()
		c.Close()
		c.log.Debug("Connection closed.")
	}()

	err := c.loop()
	if err != nil {
		c.serverError(err)
	}
}

func (c *conn) Close() error {
	c.Flush()
	return c.closer.Close()
}

func (c *conn) loop() error {
	for {
		command, fields, clientErr, err := c.readCommand()
		if err != nil {
			if err == io.EOF {
				// Just client disconnect. Ok.
				return nil
			}
			return stackerr.Wrap(err)
		}
		if clientErr == nil {
			c.log.Debugf("Command: %s.", command)
			switch string(command) { // No allocation.
			case GetCommand, GetsCommand:
				clientErr, err = c.get(fields)
			case SetCommand:
				clientErr, err = c.set(fields)
			case ContainsCommand:
				clientErr, err = c.contains(fields)
			case BeginCommand:
				clientErr, err = c.begin(fields)
			case EndCommand:
				clientErr, err = c.end(fields)
			default:
				c.log.Errorf("Unexpected command: %s", command)
				err = c.sendResponse(ErrorResponse)
			}
		}
		if clientErr != nil && err == nil {
			err = c.sendClientError(clientErr)
		}
		if err != nil {
			return err
		}
	}
}

func (c *conn) get(fields [][]byte) (clientErr, err error) {
	if len(fields) == 0 {
		clientErr = stackerr.Wrap(ErrMoreFieldsRequired)
		return
	}
	for _, key := range fields {
		clientErr = checkKey(key)
		if clientErr != nil {
			return
		}
	}
	var found int
	for _, key := range fields {
		i, ok := c.Cache.Get(string(key))
		if !ok {
			continue
		}
		found++
		c.log.Debugf("Sending value. Key %s.", key)
		c.WriteString(ValueResponse)
		c.WriteByte(' ')
		c.Write(key)
		fmt.Fprintf(c, " %v %v"+Separator, i.Flags, len(i.Data))
		c.Write(i.Data)
		_, err = c.WriteString(Separator)
		if err != nil {
			err = stackerr.Wrap(err)
			return
		}
	}
	c.log.Debugf("Sent %v found values.", found)
	err = c.sendResponse(EndResponse)
	return
}

func (c *conn) set(fields [][]byte) (clientErr, err error) {
	var m SetMeta
	var noreply bool
	m, noreply, clientErr = parseSetFields(fields)
	if clientErr != nil {
		if m.Bytes > 0 {
			// Data block size is known, skip it to keep connection usable.
			_, err = c.Discard(m.Bytes + len(Separator))
			err = stackerr.Wrap(err)
		}
		return
	}
	if m.Exptime != 0 {
		clientErr = stackerr.Wrap(ErrExpirationUnsupported)
		_, err = c.Discard(m.Bytes + len(Separator))
		err = stackerr.Wrap(err)
		return
	}
	if m.Bytes > c.MaxItemSize {
		clientErr = stackerr.Wrap(ErrTooLargeItem)
		_, err = c.Discard(m.Bytes + len(Separator))
		err = stackerr.Wrap(err)
		return
	}

	var data []byte
	data, clientErr, err = c.readDataBlock(m.Bytes)
	if err != nil || clientErr != nil {
		return
	}

	err = c.Cache.Set(c.ctx, m.Key, Item{Flags: m.Flags, Data: data})
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}

	if noreply {
		err = c.Flush()
		return
	}
	err = c.sendResponse(StoredResponse)
	return
}

func (c *conn) contains(fields [][]byte) (clientErr, err error) {
	const extraRequired = 0
	var key []byte
	var noreply bool
	key, _, noreply, clientErr = parseKeyFields(fields, extraRequired)
	if clientErr != nil {
		return
	}
	clientErr = checkKey(key)
	if clientErr != nil {
		return
	}

	found := c.Cache.Contains(string(key))

	if noreply {
		err = c.Flush()
		return
	}
	response := NotFoundResponse
	if found {
		response = FoundResponse
	}
	err = c.sendResponse(response)
	return
}

func (c *conn) begin(fields [][]byte) (clientErr, err error) {
	if len(fields) != 0 {
		clientErr = stackerr.Wrap(ErrTooManyFields)
		return
	}
	txCtx, txErr := c.Cache.BeginTransaction(c.ctx)
	if txErr != nil {
		if errors.Is(txErr, cache.ErrAlreadyInTransaction) {
			clientErr = stackerr.Wrap(txErr)
			return
		}
		err = stackerr.Wrap(txErr)
		return
	}
	c.log.Debug("Transaction begun.")
	c.ctx = txCtx
	c.inTransaction = true
	err = c.sendResponse(OKResponse)
	return
}

func (c *conn) end(fields [][]byte) (clientErr, err error) {
	if len(fields) != 0 {
		clientErr = stackerr.Wrap(ErrTooManyFields)
		return
	}
	txErr := c.Cache.EndTransaction(c.ctx)
	if txErr != nil {
		clientErr = stackerr.Wrap(txErr)
		return
	}
	c.log.Debug("Transaction ended.")
	c.ctx = c.baseCtx
	c.inTransaction = false
	err = c.sendResponse(OKResponse)
	return
}

// releaseTransaction ends transaction left open by client, so other
// connections don't wait for it forever.
func (c *conn) releaseTransaction() {
	if !c.inTransaction {
		return
	}
	c.log.Warn("Connection closed in transaction. Ending it.")
	err := c.Cache.EndTransaction(c.ctx)
	if err != nil {
		c.log.Error("Transaction end error: ", err)
	}
	c.ctx = c.baseCtx
	c.inTransaction = false
}

func (c *conn) serverError(err error) {
	c.log.Error("Server error: ", err)
	err = util.Unwrap(err)
	if err == io.ErrUnexpectedEOF {
		return
	}
	c.sendResponse(fmt.Sprintf("%s %s", ServerErrorResponse, err))
}

func (c *conn) sendClientError(err error) error {
	c.log.Error("Client error: ", err)
	err = util.Unwrap(err)
	return c.sendResponse(fmt.Sprintf("%s %s", ClientErrorResponse, err))
}

func (c *conn) sendResponse(res string) error {
	c.WriteString(res)
	c.WriteString(Separator)
	return c.Flush()
}

func (c *conn) Flush() error {
	return stackerr.Wrap(c.Writer.Flush())
}
