package notification

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"time"

	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"laundry-session-backend/config"
	"laundry-session-backend/internal/logging"
)

// messageCreator is the part of the Twilio REST API the provider uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioProvider sends text messages through Twilio's Messages API.
type TwilioProvider struct {
	api     messageCreator
	from    string
	timeout time.Duration
}

// NewTwilioProvider creates a provider from the SMS config. Incomplete credentials produce
// a provider whose every send fails with MISSING_CONFIG.
func NewTwilioProvider(cfg config.SMSConfig) *TwilioProvider {
	p := &TwilioProvider{from: cfg.FromNumber, timeout: cfg.Timeout}
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		logging.Logger.Warn("twilio credentials are not configured; finish notifications will fail")
		return p
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	client.SetTimeout(cfg.Timeout)
	p.api = client.Api
	return p
}

// Send delivers body to the E.164 number to. It returns within the configured timeout.
func (p *TwilioProvider) Send(ctx context.Context, to, body string) Result {
	if p.api == nil || p.from == "" {
		return failed(KindMissingConfig, "twilio account sid, auth token and from number are required")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(body)

	type reply struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan reply, 1)
	go func() {
		msg, err := p.api.CreateMessage(params)
		done <- reply{msg, err}
	}()

	select {
	case <-ctx.Done():
		return failed(KindTimeout, ctx.Err().Error())
	case r := <-done:
		if r.err != nil {
			res := classify(r.err)
			logging.Logger.WithError(r.err).Warnf("twilio send failed: %s", res.ErrorKind)
			return res
		}
		if r.msg == nil || r.msg.Sid == nil {
			return sent("")
		}
		return sent(*r.msg.Sid)
	}
}

// undecodedStatus matches the error the client returns when an HTTP error body is not JSON.
var undecodedStatus = regexp.MustCompile(`HTTP error code: (\d+)`)

func classify(err error) Result {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		code := restErr.Code
		if code == 0 {
			code = restErr.Status
		}
		return failed(providerKind(code), restErr.Message)
	}
	if m := undecodedStatus.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return failed(httpKind(status), err.Error())
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failed(KindTimeout, err.Error())
	}
	return failed(unknownKind(err), err.Error())
}
