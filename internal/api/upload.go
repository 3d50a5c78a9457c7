package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ammar1510/mesh/internal/models"
)

var ErrEmptyAudio = errors.New("voice note has no audio")

// progressReader reports how much of the body has been consumed by the
// transport. Percentages are only reported when they change.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.fn(pct)
		}
	}
	return n, err
}

// UploadVoiceNote uploads a recorded clip as a message to peerID and
// returns the confirmed record carrying the hosted audio URL.
func (c *Client) UploadVoiceNote(ctx context.Context, peerID string, note models.VoiceNote) (*models.Message, error) {
	if len(note.Audio) == 0 {
		return nil, ErrEmptyAudio
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := note.FileName
	if name == "" {
		name = "voice-note.webm"
	}
	part, err := mw.CreateFormFile("audio", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(note.Audio); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"duration": strconv.FormatFloat(note.Duration, 'f', -1, 64),
		"clientId": note.ClientID,
	}
	if note.ReplyTo != nil {
		data, err := json.Marshal(note.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("encode reply: %w", err)
		}
		fields["replyTo"] = string(data)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	body := &progressReader{r: &buf, total: int64(buf.Len()), fn: note.OnProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages/"+url.PathEscape(peerID)+"/voice", body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = body.total
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg models.Message
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	if note.OnProgress != nil && body.last != 100 {
		note.OnProgress(100)
	}
	return &msg, nil
}
