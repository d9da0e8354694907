package delivery

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/mpostema/dvbstreamer/internal/dvbdev"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

// diseqcRetries bounds the DiSEqC master-command retry count; failures
// past this point are logged and swallowed — DiSEqC is best-effort.
const diseqcRetries = 3

// sendDiseqc drives the "switch" sub-protocol for a committed port
// 0..3. The uncommitted argument is accepted but not encoded: no
// uncommitted-switch command is sent. It sets tone off, sets voltage, then runs the
// fixed 15ms-gapped message/burst/tone sequence. Failures are logged and
// do not abort tuning — the caller proceeds to the property-set tune
// regardless of DiSEqC outcome.
func sendDiseqc(fe *dvbdev.FrontendHandle, logger logging.Logger, committed, uncommitted int, voltage18 bool, toneOn bool) {
	if err := fe.SetTone(false); err != nil {
		logger.Warn("diseqc: tone off failed", logging.ErrField(err))
	}
	if err := fe.SetVoltage(voltage18); err != nil {
		logger.Warn("diseqc: set voltage failed", logging.ErrField(err))
	}
	time.Sleep(15 * time.Millisecond)

	msg := buildDiseqcMessage(committed, uncommitted, voltage18, toneOn)

	op := func() error {
		return fe.DiseqcSendMasterCmd(msg)
	}
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 20 * time.Millisecond
	boff.MaxElapsedTime = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(boff, diseqcRetries)); err != nil {
		logger.Warn("diseqc: master command failed after retries", logging.ErrField(err))
	}
	time.Sleep(15 * time.Millisecond)

	burstB := committed%2 == 1
	if err := fe.DiseqcSendBurst(burstB); err != nil {
		logger.Warn("diseqc: send burst failed", logging.ErrField(err))
	}
	time.Sleep(15 * time.Millisecond)

	if err := fe.SetTone(toneOn); err != nil {
		logger.Warn("diseqc: tone restore failed", logging.ErrField(err))
	}
}

// buildDiseqcMessage encodes a 4-byte "write N0" committed-switch command
// (in the 6-byte message buffer, MsgLen 4)
// selecting band/polarization/port per the standard DiSEqC 1.0 switch
// framer byte 3 layout: bit0 band, bit1 polarization, bits2-3 port.
func buildDiseqcMessage(committed, uncommitted int, voltage18, toneOn bool) dvbdev.DiseqcMsg {
	band := byte(0)
	if toneOn {
		band = 1
	}
	pol := byte(0)
	if !voltage18 {
		pol = 1
	}
	port := byte(committed&0x03) << 2

	b3 := 0xf0 | band | (pol << 1) | port
	return dvbdev.DiseqcMsg{
		Msg:    [6]byte{0xe0, 0x10, 0x38, b3, 0x00, 0x00},
		MsgLen: 4,
	}
}
