package sip

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
)

// CallResult is returned once an outbound INVITE reaches a final outcome.
type CallResult struct {
	Dialog *Dialog
	Media  RemoteMedia
}

// PlaceCall originates an outbound call to targetURI on rtpPort, retrying
// once with digest credentials on a 401/407 challenge, honoring the 30s
// watchdog, and sending ACK on acceptance (§4.6 INVITE flow).
func (t *Transport) PlaceCall(ctx context.Context, targetURI string, rtpPort int) (*CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, inviteWatchdogTimeout)
	defer cancel()

	uri := &sip.Uri{}
	if err := sip.ParseUri(targetURI, uri); err != nil {
		return nil, fmt.Errorf("sip: parse target uri: %w", err)
	}

	publicIP := t.PublicIP(ctx)
	callID := generateCallID()
	dialog := NewDialog(callID, rtpPort)
	t.storeDialog(dialog)

	offer := BuildOffer(publicIP, rtpPort)
	req := t.newInviteRequest(uri, publicIP, callID, offer)
	dialog.InviteReq = req

	resp, err := t.waitFinalResponse(ctx, req)
	if err != nil {
		t.dropDialog(callID)
		return nil, err
	}

	if isAuthChallenge(resp.StatusCode) && !dialog.MarkAuthSent() {
		authenticate, authorization := challengeHeaderName(resp.StatusCode)
		challengeHeader := resp.GetHeader(authenticate)
		if challengeHeader == nil {
			t.dropDialog(callID)
			return nil, fmt.Errorf("sip: invite challenged but no %s header present", authenticate)
		}
		cred, err := digestAuthHeader(challengeHeader.Value(), sip.INVITE.String(), uri.String(), t.cfg.Username, t.cfg.Password)
		if err != nil {
			t.dropDialog(callID)
			return nil, fmt.Errorf("sip: compute digest credentials: %w", err)
		}

		req = t.newInviteRequest(uri, publicIP, callID, offer)
		req.AppendHeader(sip.NewHeader(authorization, cred))
		req.CSeq().SeqNo = dialog.NextCSeq()
		dialog.InviteReq = req

		resp, err = t.waitFinalResponse(ctx, req)
		if err != nil {
			t.dropDialog(callID)
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		t.dropDialog(callID)
		return nil, fmt.Errorf("sip: call rejected: %d %s", resp.StatusCode, resp.Reason)
	}
	if resp.StatusCode != sip.StatusOK {
		t.dropDialog(callID)
		return nil, fmt.Errorf("sip: unexpected final response: %d %s", resp.StatusCode, resp.Reason)
	}

	media, err := ParseRemoteSDP(resp.Body())
	if err != nil {
		t.dropDialog(callID)
		return nil, err
	}

	dialog.UpdateRemoteEndpoint(media.Host, media.Port, media.Codec)
	dialog.MarkAnswered()
	dialog.LastResponse = resp
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			dialog.ToTag = tag
		}
	}

	ack := sip.NewAckRequest(req, resp, nil)
	if err := t.client.WriteRequest(ack); err != nil {
		t.dropDialog(callID)
		return nil, fmt.Errorf("sip: send ack: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"call_id":    callID,
		"remote_rtp": fmt.Sprintf("%s:%d", media.Host, media.Port),
	}).Info("sip: call answered")

	return &CallResult{Dialog: dialog, Media: media}, nil
}

// Hangup sends BYE for an established dialog and releases its state
// (§4.6 Hangup).
func (t *Transport) Hangup(dialog *Dialog) error {
	if dialog == nil || dialog.InviteReq == nil || dialog.LastResponse == nil {
		return fmt.Errorf("sip: dialog has no established invite to hang up")
	}

	from := dialog.InviteReq.From()
	to := dialog.LastResponse.To()
	if from == nil || to == nil {
		return fmt.Errorf("sip: missing From/To to build BYE")
	}

	byeReq := sip.NewRequest(sip.BYE, &to.Address)
	byeReq.AppendHeader(from)
	byeReq.AppendHeader(to)
	callIDHeader := sip.CallIDHeader(dialog.CallID)
	byeReq.AppendHeader(&callIDHeader)
	byeReq.AppendHeader(&sip.CSeqHeader{SeqNo: dialog.NextCSeq(), MethodName: sip.BYE})
	if contact := dialog.InviteReq.Contact(); contact != nil {
		byeReq.AppendHeader(contact)
	}
	cl := sip.ContentLengthHeader(0)
	byeReq.AppendHeader(&cl)

	if err := t.client.WriteRequest(byeReq); err != nil {
		return fmt.Errorf("sip: send bye: %w", err)
	}
	t.dropDialog(dialog.CallID)
	return nil
}

func (t *Transport) newInviteRequest(target *sip.Uri, localIP, callID string, sdpOffer []byte) *sip.Request {
	req := sip.NewRequest(sip.INVITE, target)

	fromURI := sip.Uri{User: t.cfg.Username, Host: localIP}
	from := &sip.FromHeader{DisplayName: t.cfg.DisplayName, Address: fromURI, Params: sip.NewParams()}
	from.Params.Add("tag", generateRandomHex(8))
	req.AppendHeader(from)

	req.AppendHeader(&sip.ToHeader{Address: *target, Params: sip.NewParams()})

	callIDHeader := sip.CallIDHeader(callID)
	req.AppendHeader(&callIDHeader)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	req.AppendHeader(&sip.ContactHeader{Address: sip.Uri{User: t.cfg.Username, Host: localIP}})

	contentType := sip.ContentTypeHeader("application/sdp")
	req.AppendHeader(&contentType)
	cl := sip.ContentLengthHeader(len(sdpOffer))
	req.AppendHeader(&cl)
	req.SetBody(sdpOffer)

	return req
}

func (t *Transport) waitFinalResponse(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	tx, err := t.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return nil, fmt.Errorf("sip: response channel closed")
			}
			if res.StatusCode/100 == 1 { // provisional
				continue
			}
			return res, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("sip: invite timed out: %w", ctx.Err())
		}
	}
}

