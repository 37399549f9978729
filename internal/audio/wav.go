// Package audio buffers inbound call audio and frames it into
// self-describing WAV segments for the transcriber.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Audio encodings carried by inbound media streams. Telephony media arrives
// as 8-bit mu-law; file uploads and the simulator use linear PCM.
const (
	EncodingPCM   = "pcm"
	EncodingMulaw = "mulaw"
)

// Format describes the raw audio of one call leg.
type Format struct {
	Encoding   string
	SampleRate int
	Channels   int
	BitDepth   int
}

// TelephonyFormat is the format Twilio media streams deliver.
func TelephonyFormat() Format {
	return Format{Encoding: EncodingMulaw, SampleRate: 8000, Channels: 1, BitDepth: 8}
}

// BytesPerSecond returns the raw data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	if f.BitDepth != 8 && f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}
	switch f.Encoding {
	case EncodingPCM:
	case EncodingMulaw:
		if f.BitDepth != 8 {
			return fmt.Errorf("mu-law requires 8-bit samples, got %d", f.BitDepth)
		}
	default:
		return fmt.Errorf("unknown encoding %q", f.Encoding)
	}
	return nil
}

func (f Format) wavFormatCode() uint16 {
	if f.Encoding == EncodingMulaw {
		return 7
	}
	return 1
}

// wavHeader is the canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32 // file size - 8
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32 // 16 for PCM-family formats
	AudioFormat   uint16 // 1 PCM, 7 mu-law
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV frames raw audio bytes into a WAV container.
func EncodeWAV(f Format, data []byte) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio data")
	}

	blockAlign := uint16(f.Channels * f.BitDepth / 8)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(wavHeaderSize - 8 + len(data)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   f.wavFormatCode(),
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    blockAlign,
		BitsPerSample: uint16(f.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(data)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// DecodeWAV splits a WAV container back into its format and raw data bytes.
func DecodeWAV(wav []byte) (Format, []byte, error) {
	if len(wav) < wavHeaderSize {
		return Format{}, nil, fmt.Errorf("WAV data too short: %d bytes", len(wav))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(wav), binary.LittleEndian, &header); err != nil {
		return Format{}, nil, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("not a RIFF/WAVE container")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return Format{}, nil, fmt.Errorf("missing data chunk")
	}

	f := Format{
		SampleRate: int(header.SampleRate),
		Channels:   int(header.NumChannels),
		BitDepth:   int(header.BitsPerSample),
	}
	switch header.AudioFormat {
	case 1:
		f.Encoding = EncodingPCM
	case 7:
		f.Encoding = EncodingMulaw
	default:
		return Format{}, nil, fmt.Errorf("unsupported audio format code %d", header.AudioFormat)
	}

	data := wav[wavHeaderSize:]
	if int(header.Subchunk2Size) < len(data) {
		data = data[:header.Subchunk2Size]
	}
	return f, data, nil
}
