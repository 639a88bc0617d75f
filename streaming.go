// streaming.go: Streaming encryption/decryption for large data sets.
//
// This module provides streaming interfaces for encrypting and decrypting large
// amounts of data without loading everything into memory. Every chunk is sealed
// under its own counter nonce, so a stream can never reuse a nonce: once the
// chunk counter is exhausted the stream fails instead of wrapping around.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// StreamingEncryptor provides streaming encryption capabilities for large datasets.
//
// Example usage:
//
//	key, _ := crypto.GenerateKey()
//	encryptor, _ := crypto.NewStreamingEncryptor(outputWriter, key)
//	defer encryptor.Close()
//
//	io.Copy(encryptor, inputReader) // Encrypts while streaming
//
// Note: The output format includes a header with the nonce fixed field and the chunk size.
type StreamingEncryptor interface {
	// Write encrypts and writes data to the underlying writer.
	// Data is processed in chunks for memory efficiency.
	Write(data []byte) (int, error)

	// Close finalizes the encryption and writes any remaining data.
	// Must be called to ensure data integrity.
	Close() error
}

// StreamingDecryptor provides streaming decryption capabilities for large datasets.
//
// Example usage:
//
//	decryptor, _ := crypto.NewStreamingDecryptor(inputReader, key)
//	defer decryptor.Close()
//
//	io.Copy(outputWriter, decryptor) // Decrypts while streaming
type StreamingDecryptor interface {
	// Read decrypts and returns data from the underlying reader.
	Read(data []byte) (int, error)

	// Close releases the decryptor.
	Close() error
}

// Default chunk size for streaming operations (64KB)
// This balances memory usage with encryption efficiency.
const DefaultChunkSize = 64 * 1024

// MaxChunkSize is the largest accepted chunk size (10MB).
const MaxChunkSize = 10 * 1024 * 1024

// Stream format:
//
//	header: [4 bytes: Magic] [4 bytes: Version] [8 bytes: Nonce fixed field] [4 bytes: Chunk Size]
//	chunk:  [4 bytes: Sealed length] [Sealed chunk]
//
// Integers are little endian. Chunk n (starting at 1) is sealed with AES-256-GCM
// under the nonce [fixed field][n as a 4-byte big-endian counter].
const (
	streamMagic       = "SGCM"
	streamVersion     = uint32(1)
	streamFixedSize   = 8
	streamCounterSize = 4
	headerSize        = 4 + 4 + streamFixedSize + 4 // 20 bytes total
	chunkHeaderSize   = 4
)

// streamingEncryptor implements StreamingEncryptor using AES-GCM.
type streamingEncryptor struct {
	writer    io.Writer
	aead      cipher.AEAD
	nonce     Nonce
	buffer    []byte
	chunkSize int
	closed    bool
	err       error // first flush failure, returned by every later call
}

// streamingDecryptor implements StreamingDecryptor using AES-GCM.
type streamingDecryptor struct {
	reader     io.Reader
	aead       cipher.AEAD
	nonce      Nonce
	chunkSize  int
	closed     bool
	headerRead bool
	remaining  []byte // Leftover bytes from previous read
}

// NewStreamingEncryptor creates a new streaming encryptor with default chunk size.
//
// Parameters:
//   - writer: Destination writer for encrypted data
//   - key: 32-byte AES-256 key for encryption
//
// Example:
//
//	file, _ := os.Create("encrypted.bin")
//	key, _ := crypto.GenerateKey()
//	enc, err := crypto.NewStreamingEncryptor(file, key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enc.Close()
func NewStreamingEncryptor(writer io.Writer, key []byte) (StreamingEncryptor, error) {
	return NewStreamingEncryptorWithChunkSize(writer, key, DefaultChunkSize)
}

// NewStreamingEncryptorWithChunkSize creates a streaming encryptor with custom chunk size.
//
// Smaller chunks use less memory but have more overhead.
// Larger chunks are more efficient but use more memory.
func NewStreamingEncryptorWithChunkSize(writer io.Writer, key []byte, chunkSize int) (StreamingEncryptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, goerrors.New("INVALID_CHUNK_SIZE", "chunk size must be between 1 and 10MB")
	}
	if err := Initialize(); err != nil {
		return nil, err
	}

	aead, err := AES256GCM.newAEAD(key)
	if err != nil {
		return nil, goerrors.Wrap(err, "CIPHER_CREATION_FAILED", "failed to create AES-GCM cipher")
	}

	fixed, err := GenerateFixedField(streamFixedSize)
	if err != nil {
		return nil, goerrors.Wrap(err, "NONCE_GENERATION_FAILED", "failed to generate nonce fixed field")
	}
	nonce, err := NewNonceWithFixedField(fixed, streamCounterSize)
	if err != nil {
		return nil, err
	}

	enc := &streamingEncryptor{
		writer:    writer,
		aead:      aead,
		nonce:     nonce,
		chunkSize: chunkSize,
		buffer:    make([]byte, 0, chunkSize),
	}

	if err := enc.writeHeader(fixed); err != nil {
		return nil, err
	}

	return enc, nil
}

// NewStreamingDecryptor creates a new streaming decryptor.
//
// The decryptor reads the header on first use to recover the nonce fixed field
// and chunk size.
func NewStreamingDecryptor(reader io.Reader, key []byte) (StreamingDecryptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := Initialize(); err != nil {
		return nil, err
	}

	aead, err := AES256GCM.newAEAD(key)
	if err != nil {
		return nil, goerrors.Wrap(err, "CIPHER_CREATION_FAILED", "failed to create AES-GCM cipher")
	}

	return &streamingDecryptor{reader: reader, aead: aead}, nil
}

// writeHeader writes the stream format header.
func (e *streamingEncryptor) writeHeader(fixed []byte) error {
	header := make([]byte, headerSize)

	copy(header[0:4], streamMagic)
	binary.LittleEndian.PutUint32(header[4:8], streamVersion)
	copy(header[8:8+streamFixedSize], fixed)
	binary.LittleEndian.PutUint32(header[8+streamFixedSize:], uint32(e.chunkSize)) // #nosec G115 -- chunkSize <= MaxChunkSize

	if _, err := e.writer.Write(header); err != nil {
		return goerrors.Wrap(err, "HEADER_WRITE_FAILED", "failed to write stream header")
	}
	return nil
}

// Write implements the Write method of StreamingEncryptor.
func (e *streamingEncryptor) Write(data []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.closed {
		return 0, goerrors.New("ENCRYPTOR_CLOSED", "cannot write to closed encryptor")
	}

	totalWritten := 0

	for len(data) > 0 {
		// Fill buffer up to chunk size
		toWrite := min(len(data), e.chunkSize-len(e.buffer))

		e.buffer = append(e.buffer, data[:toWrite]...)
		data = data[toWrite:]
		totalWritten += toWrite

		// If buffer is full, encrypt and write chunk
		if len(e.buffer) == e.chunkSize {
			if err := e.flushChunk(); err != nil {
				return totalWritten, err
			}
		}
	}

	return totalWritten, nil
}

// Close implements the Close method of StreamingEncryptor.
func (e *streamingEncryptor) Close() error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return nil
	}

	// Flush any remaining data
	if err := e.flushChunk(); err != nil {
		return err
	}

	e.closed = true
	Zeroize(e.buffer[:cap(e.buffer)])
	return nil
}

// flushChunk seals and writes the buffered data. Any failure leaves the
// stream unfinished, so it is recorded in e.err and the buffer is wiped.
func (e *streamingEncryptor) flushChunk() error {
	if len(e.buffer) == 0 {
		return nil
	}
	if err := e.sealChunk(); err != nil {
		e.err = err
		e.aead = nil
		Zeroize(e.buffer[:cap(e.buffer)])
		e.buffer = e.buffer[:0]
		return err
	}
	e.buffer = e.buffer[:0] // Reset buffer
	return nil
}

// sealChunk advances the chunk nonce, then seals and writes the buffer.
func (e *streamingEncryptor) sealChunk() error {
	if !e.nonce.TryIncrement() {
		return goerrors.New("CHUNK_OVERFLOW", "chunk counter exhausted")
	}

	encrypted, err := sealWith(e.aead, e.nonce, nil, e.buffer)
	if err != nil {
		return err
	}

	chunkHeader := getBuffer(chunkHeaderSize)
	defer putBuffer(chunkHeader)
	binary.LittleEndian.PutUint32(*chunkHeader, uint32(len(encrypted))) // #nosec G115 -- bounded by MaxChunkSize plus tag

	if _, err := e.writer.Write(*chunkHeader); err != nil {
		return goerrors.Wrap(err, "CHUNK_HEADER_WRITE_FAILED", "failed to write chunk header")
	}

	if _, err := e.writer.Write(encrypted); err != nil {
		return goerrors.Wrap(err, "CHUNK_WRITE_FAILED", "failed to write encrypted chunk")
	}
	return nil
}

// readHeader reads and validates the stream format header.
func (d *streamingDecryptor) readHeader() error {
	if d.headerRead {
		return nil
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(d.reader, header); err != nil {
		return goerrors.Wrap(err, "HEADER_READ_FAILED", "failed to read stream header")
	}

	if string(header[0:4]) != streamMagic {
		return goerrors.New("INVALID_STREAM_FORMAT", "invalid magic bytes")
	}

	if binary.LittleEndian.Uint32(header[4:8]) != streamVersion {
		return goerrors.New("UNSUPPORTED_STREAM_VERSION", "unsupported stream version")
	}

	nonce, err := NewNonceWithFixedField(header[8:8+streamFixedSize], streamCounterSize)
	if err != nil {
		return err
	}
	d.nonce = nonce

	chunkSize := binary.LittleEndian.Uint32(header[8+streamFixedSize:])
	if chunkSize == 0 || chunkSize > MaxChunkSize {
		return goerrors.New("INVALID_CHUNK_SIZE", "invalid chunk size in header")
	}
	d.chunkSize = int(chunkSize)
	d.headerRead = true

	return nil
}

// Read implements the Read method of StreamingDecryptor.
func (d *streamingDecryptor) Read(data []byte) (int, error) {
	if d.closed {
		return 0, goerrors.New("DECRYPTOR_CLOSED", "cannot read from closed decryptor")
	}

	if err := d.readHeader(); err != nil {
		return 0, err
	}

	totalRead := 0

	for len(data) > 0 {
		// If we have remaining decrypted data, use it first
		if len(d.remaining) > 0 {
			n := copy(data, d.remaining)
			d.remaining = d.remaining[n:]
			data = data[n:]
			totalRead += n
			continue
		}

		chunk, err := d.readNextChunk()
		if err != nil {
			if err == io.EOF && totalRead > 0 {
				return totalRead, nil
			}
			return totalRead, err
		}

		n := copy(data, chunk)
		d.remaining = chunk[n:]
		data = data[n:]
		totalRead += n
	}

	return totalRead, nil
}

// Close implements the Close method of StreamingDecryptor.
func (d *streamingDecryptor) Close() error {
	if d.closed {
		return nil
	}

	d.closed = true
	Zeroize(d.remaining)
	d.remaining = nil
	return nil
}

// readNextChunk reads and decrypts the next chunk from the stream.
// It returns io.EOF at a clean chunk boundary.
func (d *streamingDecryptor) readNextChunk() ([]byte, error) {
	chunkHeader := make([]byte, chunkHeaderSize)
	if _, err := io.ReadFull(d.reader, chunkHeader); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, goerrors.Wrap(err, "CHUNK_HEADER_READ_FAILED", "truncated chunk header")
		}
		return nil, err // Propagate EOF or other read errors
	}

	encryptedSize := binary.LittleEndian.Uint32(chunkHeader)
	maxSize := uint32(d.chunkSize + d.aead.Overhead()) // #nosec G115 -- chunkSize <= MaxChunkSize
	if encryptedSize < uint32(d.aead.Overhead()) || encryptedSize > maxSize {
		return nil, goerrors.New("INVALID_CHUNK_SIZE", "chunk size out of range")
	}

	encrypted := make([]byte, encryptedSize)
	if _, err := io.ReadFull(d.reader, encrypted); err != nil {
		return nil, goerrors.Wrap(err, "CHUNK_READ_FAILED", "failed to read encrypted chunk")
	}

	if !d.nonce.TryIncrement() {
		return nil, goerrors.New("CHUNK_OVERFLOW", "chunk counter exhausted")
	}

	decrypted, err := d.aead.Open(encrypted[:0], d.nonce.Bytes(), encrypted, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, "CHUNK_DECRYPTION_FAILED", "failed to decrypt chunk")
	}

	return decrypted, nil
}
