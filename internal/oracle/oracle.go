// Package oracle HTTP-клиент сервиса анализа видео: оценка кадра
// (живая ли рыба, вид, описание) и векторизация описания.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
)

// FrameScore результат анализа одного кадра.
type FrameScore struct {
	AliveScore  float64 `json:"aliveScore"`
	Confidence  float64 `json:"confidence"`
	Species     string  `json:"species,omitempty"`
	Fingerprint string  `json:"fishFingerprint,omitempty"`
	Note        string  `json:"explanation,omitempty"`
}

// Config параметры подключения.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client клиент оракула.
type Client struct {
	http *resty.Client
}

type scoreRequest struct {
	// []byte кодируется в JSON как base64
	Image []byte `json:"image"`
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New создаёт клиент. Пустой URL недопустим.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ORACLE_URL не задан")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: c}, nil
}

// ScoreFrame отправляет кадр (JPEG/PNG) на анализ.
func (c *Client) ScoreFrame(ctx context.Context, image []byte) (FrameScore, error) {
	if len(image) == 0 {
		return FrameScore{}, fmt.Errorf("пустой кадр: %w", common.ErrInvalidInput)
	}
	var out FrameScore
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(scoreRequest{Image: image}).
		SetResult(&out).
		SetError(&errorResponse{}).
		Post("/score-frame")
	if err := upstreamErr("score-frame", resp, err); err != nil {
		return FrameScore{}, err
	}
	if out.AliveScore < 0 || out.AliveScore > 1 || out.Confidence < 0 || out.Confidence > 1 {
		return FrameScore{}, fmt.Errorf("score-frame: оценки вне [0,1] (%v, %v): %w",
			out.AliveScore, out.Confidence, common.ErrUpstreamOracle)
	}
	return out, nil
}

// Embed возвращает вектор для текстового описания рыбы.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("пустой текст: %w", common.ErrInvalidInput)
	}
	var out embedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Text: text}).
		SetResult(&out).
		SetError(&errorResponse{}).
		Post("/embed")
	if err := upstreamErr("embed", resp, err); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embed: пустой вектор: %w", common.ErrUpstreamOracle)
	}
	return out.Embedding, nil
}

func upstreamErr(op string, resp *resty.Response, err error) error {
	if err != nil {
		log.WithError(err).WithField("op", op).Warn("Оракул недоступен")
		return fmt.Errorf("%s: %v: %w", op, err, common.ErrUpstreamOracle)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
			msg = e.Error
		}
		log.WithFields(log.Fields{"op": op, "status": resp.StatusCode()}).Warn("Оракул вернул ошибку")
		return fmt.Errorf("%s: статус %d: %s: %w", op, resp.StatusCode(), msg, common.ErrUpstreamOracle)
	}
	return nil
}
