package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestTimeout = 10 * time.Second

// HTTPProvider calls the partner REST API. Failures are reported as
// ErrUnavailable without retries.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	aliases *FieldAliases
	logger  *zap.Logger
}

// NewHTTPProvider creates a provider limited to rps outbound requests per second.
func NewHTTPProvider(baseURL, apiKey string, rps float64, aliases *FieldAliases, logger *zap.Logger) *HTTPProvider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(limit, 1),
		aliases: aliases,
		logger:  logger,
	}
}

func (p *HTTPProvider) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	var data map[string]any
	if err := p.getJSON(ctx, "/auth/verify", url.Values{"token": {token}}, &data); err != nil {
		return nil, err
	}

	if valid, _ := data["valid"].(bool); !valid {
		p.logger.Warn("Partner token verification returned invalid")
		return nil, ErrInvalidToken
	}

	// Some deployments return the user at top level.
	user, ok := data["user"].(map[string]any)
	if !ok || len(user) == 0 {
		user = data
	}

	externalID := scalarString(user["id"])
	email := scalarString(user["email"])
	if externalID == "" || email == "" {
		p.logger.Warn("Partner verify response has empty id/email")
		return nil, ErrInvalidToken
	}

	role, ok := ParseRole(user, p.aliases)
	if !ok {
		p.logger.Warn("Unknown partner role", zap.Any("role", user["role"]))
		return nil, ErrInvalidToken
	}

	name := scalarString(user["name"])
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	return &Identity{
		ExternalID:           externalID,
		Email:                email,
		Name:                 name,
		Role:                 role,
		UniversityRollNumber: ParseRollNumber(user, data, p.aliases),
		Raw:                  data,
	}, nil
}

func (p *HTTPProvider) StudentProfile(ctx context.Context, email string) (*StudentProfile, error) {
	profile := &StudentProfile{Email: email, MentorEmails: []string{}, Source: ModeReal}

	wanted := strings.ToLower(strings.TrimSpace(email))
	if wanted == "" {
		return profile, nil
	}

	var data struct {
		Students []map[string]any `json:"students"`
	}
	if err := p.getJSON(ctx, "/students", nil, &data); err != nil {
		return nil, err
	}

	for _, s := range data.Students {
		if strings.ToLower(scalarString(s["email"])) != wanted {
			continue
		}
		if emails := ParseMentorEmails(s, p.aliases); emails != nil {
			profile.MentorEmails = emails
		}
		profile.MentorEmailsBySubject = ParseMentorEmailsBySubject(s, p.aliases)
		break
	}

	return profile, nil
}

func (p *HTTPProvider) ListFaculty(ctx context.Context) ([]FacultyRecord, error) {
	var data struct {
		Faculty []map[string]any `json:"faculty"`
	}
	if err := p.getJSON(ctx, "/faculty", nil, &data); err != nil {
		return nil, err
	}

	records := make([]FacultyRecord, 0, len(data.Faculty))
	for _, f := range data.Faculty {
		records = append(records, FacultyRecord{
			ExternalID: scalarString(f["id"]),
			Email:      scalarString(f["email"]),
			Name:       scalarString(f["name"]),
		})
	}
	return records, nil
}

// getJSON performs an authenticated GET and decodes a 200 response into out.
func (p *HTTPProvider) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if p.baseURL == "" || p.apiKey == "" {
		p.logger.Error("PBL_API_URL / PBL_API_KEY not configured")
		return ErrUnavailable
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	target := p.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("Partner request error", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		fields := []zap.Field{
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(body))),
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			p.logger.Error("Partner request unauthorized", fields...)
		} else {
			p.logger.Warn("Partner request failed", fields...)
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		p.logger.Error("Partner response decode error", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	return nil
}
