package common

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
)

// Length-prefixed JSON frames: 4-byte big-endian length followed by the JSON document

type JsonQueueWriter struct {
	Writer io.Writer
}

func NewJsonQueueWriter(w io.Writer) *JsonQueueWriter {
	return &JsonQueueWriter{Writer: w}
}

func (w *JsonQueueWriter) Write(value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	// One write per frame so a frame is never interleaved with a close
	frame := make([]byte, 4+len(jsonData))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(jsonData)))
	copy(frame[4:], jsonData)

	_, err = w.Writer.Write(frame)
	return err
}

func (w *JsonQueueWriter) Close() error {
	if closer, ok := w.Writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CloseWithError forwards err to the reader side when the underlying writer supports it
func (w *JsonQueueWriter) CloseWithError(err error) error {
	if closer, ok := w.Writer.(interface{ CloseWithError(error) error }); ok {
		return closer.CloseWithError(err)
	}
	return w.Close()
}

// -------------------------------------------------------------------------------------------------

type JsonQueueReader struct {
	Reader io.Reader
}

func NewJsonQueueReader(r io.Reader) *JsonQueueReader {
	return &JsonQueueReader{Reader: r}
}

func (r *JsonQueueReader) Read(value interface{}) (int, error) {
	lenBytes := make([]byte, 4)
	_, err := io.ReadFull(r.Reader, lenBytes)
	if err != nil {
		return 0, err // Propagate io.EOF or the writer's close error
	}

	length := binary.BigEndian.Uint32(lenBytes)

	jsonData := make([]byte, length)
	_, err = io.ReadFull(r.Reader, jsonData)
	if err != nil {
		return 0, err // io.ErrUnexpectedEOF if the stream is closed before the full message is read
	}

	// Numbers stay json.Number so int64 values above 2^53 survive the round trip
	decoder := json.NewDecoder(bytes.NewReader(jsonData))
	decoder.UseNumber()
	err = decoder.Decode(value)
	if err != nil {
		return 0, err
	}

	return int(length), nil
}

func (r *JsonQueueReader) Close() error {
	if closer, ok := r.Reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
