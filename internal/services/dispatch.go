package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rekwane/RJFinancial-sub000/internal/config"
	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/Rekwane/RJFinancial-sub000/pkg/logger"
	"github.com/sony/gobreaker"
)

const (
	sendGridMailEndpoint = "https://api.sendgrid.com/v3/mail/send"
	twilioAPIBase        = "https://api.twilio.com/2010-04-01"
	dispatchTimeout      = 10 * time.Second
)

var (
	ErrChannelNotConfigured = errors.New("delivery channel not configured")
	ErrNoDestination        = errors.New("no destination on file for channel")
)

// CodeDispatcher delivers a one-time code to a user over an external channel.
type CodeDispatcher interface {
	SendCode(ctx context.Context, user *models.User, channel models.VerificationChannel, code string) error
}

// Dispatcher sends verification codes through SendGrid (email) and Twilio
// (SMS). Each provider sits behind its own circuit breaker so a flapping
// provider fails fast instead of tying up request handlers. A channel whose
// credentials were absent at boot rejects sends with ErrChannelNotConfigured.
type Dispatcher struct {
	email config.EmailConfig
	sms   config.SMSConfig

	httpClient   *http.Client
	emailBreaker *gobreaker.CircuitBreaker
	smsBreaker   *gobreaker.CircuitBreaker

	emailEndpoint string
	smsAPIBase    string
}

func NewDispatcher(emailCfg config.EmailConfig, smsCfg config.SMSConfig) *Dispatcher {
	if !emailCfg.Configured() {
		logger.Warn("email_dispatch_disabled", map[string]interface{}{
			"reason": "missing SendGrid credentials",
		})
	}
	if !smsCfg.Configured() {
		logger.Warn("sms_dispatch_disabled", map[string]interface{}{
			"reason": "missing Twilio credentials",
		})
	}

	return &Dispatcher{
		email:         emailCfg,
		sms:           smsCfg,
		httpClient:    &http.Client{Timeout: dispatchTimeout},
		emailBreaker:  gobreaker.NewCircuitBreaker(breakerSettings("sendgrid")),
		smsBreaker:    gobreaker.NewCircuitBreaker(breakerSettings("twilio")),
		emailEndpoint: sendGridMailEndpoint,
		smsAPIBase:    twilioAPIBase,
	}
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("dispatch_breaker_state_change", map[string]interface{}{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			})
		},
	}
}

func (d *Dispatcher) SendCode(ctx context.Context, user *models.User, channel models.VerificationChannel, code string) error {
	switch channel {
	case models.VerificationChannelEmail:
		return d.sendEmail(ctx, user, code)
	case models.VerificationChannelSMS:
		return d.sendSMS(ctx, user, code)
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, user *models.User, code string) error {
	if !d.email.Configured() {
		return ErrChannelNotConfigured
	}
	if user.Email == "" {
		return ErrNoDestination
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{{
			"to": []map[string]string{{"email": user.Email}},
		}},
		"from":    map[string]string{"email": d.email.FromAddress},
		"subject": "Your RJFinancial verification code",
		"content": []map[string]string{{
			"type":  "text/plain",
			"value": fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = d.emailBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.emailEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+d.email.SendGridAPIKey)
		req.Header.Set("Content-Type", "application/json")

		return nil, d.do(req, "sendgrid")
	})
	return err
}

func (d *Dispatcher) sendSMS(ctx context.Context, user *models.User, code string) error {
	if !d.sms.Configured() {
		return ErrChannelNotConfigured
	}
	if user.PhoneNumber == nil || *user.PhoneNumber == "" {
		return ErrNoDestination
	}

	form := url.Values{}
	form.Set("To", *user.PhoneNumber)
	form.Set("From", d.sms.FromNumber)
	form.Set("Body", fmt.Sprintf("Your RJFinancial verification code is %s. It expires in 10 minutes.", code))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", d.smsAPIBase, d.sms.TwilioAccountSID)

	_, err := d.smsBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(d.sms.TwilioAccountSID, d.sms.TwilioAuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return nil, d.do(req, "twilio")
	})
	return err
}

func (d *Dispatcher) do(req *http.Request, provider string) error {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		// Providers return a JSON error body; keep a truncated copy in the
		// server log only, never in the client response.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error("dispatch_provider_rejected", nil, map[string]interface{}{
			"provider": provider,
			"status":   resp.StatusCode,
			"detail":   string(detail),
		})
		return fmt.Errorf("%s returned status %d", provider, resp.StatusCode)
	}

	return nil
}
