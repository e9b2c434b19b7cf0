package openweathermap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"meteo/logger"
	"meteo/manager"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	DefaultUnits   = "metric"
	DefaultLang    = "fr"

	// NoDescription is shown when the provider sends an empty weather list.
	NoDescription = "Pas de description"
)

var (
	ErrMissingAPIKey = errors.New("openweathermap: api key is required")
	errInvalidURL    = errors.New("invalid provider url")
)

type Config struct {
	BaseURL string
	APIKey  string
	Units   string
	Lang    string
	Timeout time.Duration
}

func New(config Config) (*openWeatherMap, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Units == "" {
		config.Units = DefaultUnits
	}
	if config.Lang == "" {
		config.Lang = DefaultLang
	}

	client := resty.New()
	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}

	return &openWeatherMap{
		config: config,
		client: client,
		logger: logger.NewNop(),
	}, nil
}

type openWeatherMap struct {
	config Config
	client *resty.Client
	logger *logger.Logger
}

func (o *openWeatherMap) SetLogger(l *logger.Logger) {
	o.logger = l.Named("openweathermap")
}

// Request is a fully built provider URL. It is not modified after
// BuildRequest returns.
type Request struct {
	url *url.URL
}

func (r Request) String() string {
	return r.url.String()
}

// Redacted returns the URL with the api key masked.
func (r Request) Redacted() string {
	u := *r.url
	u.RawQuery = redactKey(u.RawQuery)
	return u.String()
}

// Query returns the decoded query parameters.
func (r Request) Query() url.Values {
	return r.url.Query()
}

// BuildRequest composes <base>/weather?q=..&appid=..&units=..&lang=.. for a
// city. The city is percent-encoded; spaces become %20.
func (o *openWeatherMap) BuildRequest(city string) (Request, error) {
	base, err := url.Parse(o.config.BaseURL)
	if err != nil {
		return Request{}, manager.NewFailure(manager.InvalidInput, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return Request{}, manager.NewFailure(manager.InvalidInput,
			fmt.Errorf("%w: %q", errInvalidURL, o.config.BaseURL))
	}

	endpoint := base.JoinPath("weather")
	endpoint.RawQuery = strings.Join([]string{
		"q=" + escape(city),
		"appid=" + escape(o.config.APIKey),
		"units=" + escape(o.config.Units),
		"lang=" + escape(o.config.Lang),
	}, "&")

	return Request{url: endpoint}, nil
}

func (o *openWeatherMap) Get(ctx context.Context, query manager.Query) (manager.Report, error) {
	request, err := o.BuildRequest(query.City)
	if err != nil {
		return manager.Report{}, err
	}

	o.logger.Debug("requesting current weather", logger.String("url", request.Redacted()))

	body, err := o.processRequest(ctx, request)
	if err != nil {
		return manager.Report{}, err
	}

	return o.unmarshal(body)
}

func (o *openWeatherMap) processRequest(ctx context.Context, request Request) ([]byte, error) {
	response, err := o.client.R().SetContext(ctx).Get(request.String())
	if err != nil {
		// url.Error carries the full URL, api key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, manager.NewFailure(manager.NetworkError, err)
	}

	body := response.Body()
	if len(body) == 0 {
		return nil, manager.NewFailure(manager.EmptyResponse,
			fmt.Errorf("empty body, status code: %d", response.StatusCode()))
	}

	o.logger.Debug("provider response",
		logger.Int("status_code", response.StatusCode()),
		logger.String("body", indent(body)))

	return body, nil
}

type result struct {
	Weather *[]struct {
		Description *string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

// providerError is the body OpenWeatherMap sends for unknown cities and bad
// keys. It only feeds the debug log; it does not change the outcome.
type providerError struct {
	Cod     any    `json:"cod"`
	Message string `json:"message"`
}

func (o *openWeatherMap) unmarshal(data []byte) (manager.Report, error) {
	var r result

	if err := json.Unmarshal(data, &r); err != nil {
		return manager.Report{}, manager.NewFailure(manager.DecodeError, err)
	}

	if err := r.validate(); err != nil {
		var pe providerError
		if json.Unmarshal(data, &pe) == nil && pe.Message != "" {
			o.logger.Debug("provider returned an error payload",
				logger.String("cod", fmt.Sprint(pe.Cod)),
				logger.String("message", pe.Message))
		}
		return manager.Report{}, manager.NewFailure(manager.DecodeError, err)
	}

	report := manager.Report{
		Description:        NoDescription,
		TemperatureCelsius: int(*r.Main.Temp),
	}
	if weather := *r.Weather; len(weather) > 0 {
		report.Description = capitalize(*weather[0].Description)
	}

	return report, nil
}

func (r result) validate() error {
	if r.Weather == nil {
		return errors.New(`missing "weather"`)
	}
	for i, w := range *r.Weather {
		if w.Description == nil {
			return fmt.Errorf(`missing "weather[%d].description"`, i)
		}
	}
	if r.Main == nil {
		return errors.New(`missing "main"`)
	}
	if r.Main.Temp == nil {
		return errors.New(`missing "main.temp"`)
	}
	return nil
}

// capitalize upper-cases the first letter of every word and lower-cases the
// rest, so "ciel dégagé" becomes "Ciel Dégagé".
func capitalize(s string) string {
	return cases.Title(language.French).String(s)
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func redactKey(rawQuery string) string {
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		if strings.HasPrefix(part, "appid=") {
			parts[i] = "appid=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

func indent(body []byte) string {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
