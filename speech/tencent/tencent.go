// Package tencent adapts Tencent Cloud's TextToVoice API to the
// speech.Service interface.
package tencent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tcts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"
	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "tencent"

	// EnvSecretID and EnvSecretKey are consulted when WithCredentials is
	// not used.
	EnvSecretID  = "TENCENTCLOUD_SECRET_ID"
	EnvSecretKey = "TENCENTCLOUD_SECRET_KEY"

	// DefaultVoiceType is ZhiYu, a standard Mandarin voice.
	DefaultVoiceType = 1001

	// DefaultRegion is used when no region is configured.
	DefaultRegion = "ap-guangzhou"

	defaultEndpoint = "tts.tencentcloudapi.com"
)

// Overrides carries per-request parameters. Nil fields fall back to the
// Service's configured defaults.
type Overrides struct {
	Speed  *float64 `json:"speed"`
	Volume *float64 `json:"volume"`
}

// Config is the effective parameter set for one synthesis request and the
// cache fingerprint payload. Unset optionals serialize as null.
type Config struct {
	VoiceType int64    `json:"voice_type"`
	Region    string   `json:"region"`
	Codec     string   `json:"codec"`
	Speed     *float64 `json:"speed"`
	Volume    *float64 `json:"volume"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	secretID  string
	secretKey string
	region    string
	endpoint  string
	voiceType int64
	speed     *float64
	volume    *float64
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		secretID:  os.Getenv(EnvSecretID),
		secretKey: os.Getenv(EnvSecretKey),
		region:    DefaultRegion,
		endpoint:  defaultEndpoint,
		voiceType: DefaultVoiceType,
		logger:    slog.Default(),
	}
}

// Option configures the Tencent service.
type Option func(*options)

// WithCredentials sets the API credentials, overriding the
// TENCENTCLOUD_SECRET_ID and TENCENTCLOUD_SECRET_KEY environment variables.
func WithCredentials(secretID, secretKey string) Option {
	return func(o *options) {
		o.secretID = secretID
		o.secretKey = secretKey
	}
}

// WithRegion sets the service region, for example "ap-shanghai".
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint replaces the API endpoint. A plain host keeps HTTPS; an
// "http://host" value switches to HTTP, which tests use.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithVoiceType selects the voice, for example 101016 (ZhiYun) or 1001.
func WithVoiceType(voiceType int64) Option {
	return func(o *options) { o.voiceType = voiceType }
}

// WithSpeed sets the default speaking speed, -2 (slowest) to 6 (fastest).
func WithSpeed(speed float64) Option {
	return func(o *options) { o.speed = &speed }
}

// WithVolume sets the default volume, 0 to 10.
func WithVolume(volume float64) Option {
	return func(o *options) { o.volume = &volume }
}

// WithLogger sets the slog.Logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service synthesizes speech through the Tencent Cloud TTS API.
type Service struct {
	opts   options
	client *tcts.Client
	log    *slog.Logger
}

var _ speech.Service = (*Service)(nil)

// New builds a Tencent service.
func New(optFns ...Option) (*Service, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.secretID == "" || opts.secretKey == "" {
		return nil, fmt.Errorf("tencent: missing credentials (set %s and %s or use WithCredentials)",
			EnvSecretID, EnvSecretKey)
	}

	credential := common.NewCredential(opts.secretID, opts.secretKey)
	cpf := profile.NewClientProfile()
	if host, ok := strings.CutPrefix(opts.endpoint, "http://"); ok {
		cpf.HttpProfile.Scheme = "http"
		cpf.HttpProfile.Endpoint = host
	} else {
		cpf.HttpProfile.Endpoint = opts.endpoint
	}

	client, err := tcts.NewClient(credential, opts.region, cpf)
	if err != nil {
		return nil, fmt.Errorf("tencent: building client: %w", err)
	}

	return &Service{opts: opts, client: client, log: opts.logger}, nil
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

func overridesFrom(v any) (Overrides, error) {
	switch ov := v.(type) {
	case nil:
		return Overrides{}, nil
	case Overrides:
		return ov, nil
	case *Overrides:
		if ov == nil {
			return Overrides{}, nil
		}
		return *ov, nil
	default:
		return Overrides{}, speech.InvalidParamf(ServiceName, "unsupported overrides type %T", v)
	}
}

// ConfigPayload implements speech.Service.
func (s *Service) ConfigPayload(_ context.Context, req speech.Request) (any, error) {
	ov, err := overridesFrom(req.Overrides)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		VoiceType: s.opts.voiceType,
		Region:    s.opts.region,
		Codec:     "mp3",
		Speed:     s.opts.speed,
		Volume:    s.opts.volume,
	}
	if ov.Speed != nil {
		cfg.Speed = ov.Speed
	}
	if ov.Volume != nil {
		cfg.Volume = ov.Volume
	}

	return cfg, nil
}

// Synthesize implements speech.Service. Each call carries a fresh session id
// as the API requires one per request.
func (s *Service) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	cfg, ok := req.Config.(*Config)
	if !ok || cfg == nil {
		built, err := s.ConfigPayload(ctx, req)
		if err != nil {
			return nil, err
		}
		cfg = built.(*Config)
	}

	ttsReq := tcts.NewTextToVoiceRequest()
	ttsReq.Text = common.StringPtr(req.Text)
	ttsReq.SessionId = common.StringPtr(uuid.NewString())
	ttsReq.VoiceType = common.Int64Ptr(cfg.VoiceType)
	ttsReq.Codec = common.StringPtr(cfg.Codec)
	if cfg.Speed != nil {
		ttsReq.Speed = common.Float64Ptr(*cfg.Speed)
	}
	if cfg.Volume != nil {
		ttsReq.Volume = common.Float64Ptr(*cfg.Volume)
	}

	s.log.Debug("requesting synthesis",
		"service", ServiceName,
		"voice_type", cfg.VoiceType,
		"chars", len(req.Text),
	)

	resp, err := s.client.TextToVoiceWithContext(ctx, ttsReq)
	if err != nil {
		return nil, vendorError("synthesize", err)
	}

	if resp.Response == nil || resp.Response.Audio == nil || *resp.Response.Audio == "" {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "no audio in response", nil)
	}

	data, err := base64.StdEncoding.DecodeString(*resp.Response.Audio)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "decoding base64 audio", err)
	}

	return &speech.Audio{Data: data, Format: speech.FormatMP3}, nil
}

// vendorError maps SDK errors onto VendorError. The SDK reports failures
// with string codes such as "AuthFailure.SignatureFailure" instead of HTTP
// statuses.
func vendorError(op string, err error) error {
	var sdkErr *tcerrors.TencentCloudSDKError
	if errors.As(err, &sdkErr) {
		return speech.NewVendorError(ServiceName, op, 0,
			fmt.Sprintf("%s: %s", sdkErr.Code, sdkErr.Message), err)
	}
	return speech.NewVendorError(ServiceName, op, 0, "", err)
}
