package agenthandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/interfaces"
)

var (
	ErrSecretNotLoaded = errors.New("secret not loaded")
	ErrStaleData       = errors.New("weather data is too old")
)

const (
	// MaxWeatherAge bounds how old the upstream observation may be.
	MaxWeatherAge = time.Hour
	// UnknownLocation is reported when the upstream response names no location.
	UnknownLocation = "Unknown"
)

type weatherAPIResponse struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Current struct {
		TempC            float64 `json:"temp_c"`
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
	} `json:"current"`
}

// HandleProcessData reports the current temperature at a location. The envelope is
// timestamped with the time of the upstream observation, not the time of the request.
func (h *Handler) HandleProcessData(w http.ResponseWriter, r *http.Request) {
	req, err := api.DecodeJSON[api.ProcessDataRequest[api.WeatherRequest]](r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	resp, observedAt, err := h.ProcessData(r.Context(), req.Payload)
	if err != nil {
		h.log.Info("Request failed", "path", r.URL.Path, "err", err)
		api.WriteError(w, err)
		return
	}
	writeSigned(h, w, resp, uint64(observedAt.UnixMilli()))
}

// ProcessData queries the weather API with the key loaded through Seal.
func (h *Handler) ProcessData(ctx context.Context, req api.WeatherRequest) (api.WeatherResponse, time.Time, error) {
	apiKey, ok := h.secrets.Secret(h.cfg.WeatherSecret)
	if !ok {
		return api.WeatherResponse{}, time.Time{}, fmt.Errorf("%w: %s", ErrSecretNotLoaded, h.cfg.WeatherSecret)
	}

	query := url.Values{}
	query.Set("key", string(apiKey))
	query.Set("q", req.Location)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.WeatherAPIURL+"?"+query.Encode(), nil)
	if err != nil {
		return api.WeatherResponse{}, time.Time{}, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return api.WeatherResponse{}, time.Time{}, interfaces.NewExternalServiceError("weatherapi", "current", redactAPIKey(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.WeatherResponse{}, time.Time{}, interfaces.NewExternalServiceError("weatherapi", "current", err)
	}
	if resp.StatusCode != http.StatusOK {
		return api.WeatherResponse{}, time.Time{}, interfaces.NewExternalServiceError("weatherapi", "current",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed weatherAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return api.WeatherResponse{}, time.Time{}, interfaces.NewExternalServiceError("weatherapi", "current",
			fmt.Errorf("could not parse response: %w", err))
	}

	observedAt := time.Unix(parsed.Current.LastUpdatedEpoch, 0)
	if observedAt.Add(MaxWeatherAge).Before(h.now()) {
		return api.WeatherResponse{}, time.Time{}, fmt.Errorf("%w: observed at %s", ErrStaleData, observedAt.UTC().Format(time.RFC3339))
	}

	temperature := parsed.Current.TempC
	if temperature < 0 {
		temperature = 0
	}
	location := parsed.Location.Name
	if location == "" {
		location = UnknownLocation
	}
	return api.WeatherResponse{
		Location:    location,
		Temperature: uint64(temperature),
	}, observedAt, nil
}

// redactAPIKey masks the key query parameter in the URL carried by transport errors.
func redactAPIKey(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return &url.Error{Op: urlErr.Op, URL: "<redacted>", Err: urlErr.Err}
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
}
