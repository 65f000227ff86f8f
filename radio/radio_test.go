// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/ieee802154/phy802154"
)

// waitState polls until the driver reaches want or the deadline passes.
// The worker goroutine owns d.state; this is the same kind of bounded
// poll the FSM itself uses while waiting on chip status bits.
func waitState(t *testing.T, d *Driver, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.state == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state: want %v, got %v", want, d.state)
}

func TestInitParksInSleep(t *testing.T) {
	d, _, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	assert.Equal(t, StateSleep, d.state)
}

func TestOnOffIdempotent(t *testing.T) {
	d, _, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)

	require.NoError(t, d.On())
	assert.Equal(t, StateSniff, d.state)
	require.NoError(t, d.On()) // already sniffing: no-op success

	require.NoError(t, d.Off())
	assert.Equal(t, StateSleep, d.state)
	require.NoError(t, d.Off()) // already asleep: no-op success
}

func TestInitRejectsWrongPartNumber(t *testing.T) {
	spi := newFakeSPI()
	regs := newTestRegs()
	regs.PartNumber = RegAddr(0x18F) // extended-space PARTNUMBER
	spi.regs[regs.MARCState] = marcStateIdle
	spi.regs[regs.PartNumber] = 0x48

	_, err := New(spi, Pins{}, regs, RadioOpts{SkipIRQSelfTest: true, PartNumber: 0x20})
	assert.ErrorIs(t, err, ErrFatal)

	spi.regs[regs.PartNumber] = 0x20
	_, err = New(spi, Pins{}, regs, RadioOpts{SkipIRQSelfTest: true, PartNumber: 0x20})
	assert.NoError(t, err)
}

func TestOnAfterNonInitFails(t *testing.T) {
	d := &Driver{state: StateNonInit, reqChan: make(chan request), isrEvents: make(chan isrEvent, 1)}
	go d.worker()
	assert.ErrorIs(t, d.On(), ErrInitFailed)
}

func TestSendShortFrameCompletesOnPacketEnd(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	require.NoError(t, d.On())

	phy := phy802154.New(false)
	buf := make([]byte, phy.HeaderLen()+4+4)
	payload := []byte{1, 2, 3, 4}
	copy(buf[phy.HeaderLen():], payload)
	frame, err := phy.Send(buf, len(payload))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Send(frame) }()

	waitState(t, d, StateTxBusy)
	d.OnPacketEnd()

	require.NoError(t, <-errCh)
	assert.Equal(t, StateSniff, d.state)
	assert.Equal(t, frame, spi.txFIFO)
}

func TestSendWhileBusyFails(t *testing.T) {
	d, _, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	// Still in Sleep: Send requires Sniff.
	assert.ErrorIs(t, d.Send([]byte{1, 2, 3}), ErrBusy)
}

func TestSendLongFrameStreams(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	require.NoError(t, d.On())

	frame := make([]byte, txFIFOSize+availBytesInTXFIFO+10)
	for i := range frame {
		frame[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.Send(frame) }()

	waitState(t, d, StateTxBusy)
	// First refill: 121 of the 131 streamed bytes go out, leaving 10, which
	// fits one chunk, so the driver flips to fixed mode.
	d.OnFIFOThreshold()
	time.Sleep(5 * time.Millisecond)
	// Second refill drains the remaining 10 bytes and marks the last portion.
	d.OnFIFOThreshold()
	time.Sleep(5 * time.Millisecond)
	d.OnPacketEnd()

	require.NoError(t, <-errCh)
	assert.Equal(t, StateSniff, d.state)
	assert.Equal(t, frame, spi.txFIFO)
}

func TestSendLongFrameRefillCount(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	require.NoError(t, d.On())

	// A 506-byte frame (500-byte payload plus headers and CRC) loads 128
	// bytes up front and refills the remaining 378 in chunks of 121:
	// exactly four threshold firings, the last one 15 bytes.
	frame := make([]byte, 506)
	for i := range frame {
		frame[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.Send(frame) }()

	waitState(t, d, StateTxBusy)
	for i := 0; i < 4; i++ {
		d.OnFIFOThreshold()
		time.Sleep(5 * time.Millisecond)
	}
	d.OnPacketEnd()

	require.NoError(t, <-errCh)
	assert.Equal(t, frame, spi.txFIFO)
	assert.Equal(t, 5, spi.fifoWrites, "initial burst plus four refills")
}

func TestISRInSleepDoesNotMutateState(t *testing.T) {
	d, _, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	require.Equal(t, StateSleep, d.state)

	d.OnSyncDetect()
	d.OnFIFOThreshold()
	d.OnPacketEnd()
	d.OnCCADone()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, StateSleep, d.state)
	assert.Equal(t, 3, d.errCount, "sync, threshold and packet-end each count one error")
}

func TestReceiveShortFrame(t *testing.T) {
	var got []byte
	sink := func(payload []byte) { got = payload }

	d, spi, err := newTestDriver(RadioOpts{Sink: sink})
	require.NoError(t, err)
	require.NoError(t, d.On())

	phy := phy802154.New(false)
	buf := make([]byte, phy.HeaderLen()+4+4)
	payload := []byte{9, 8, 7, 6}
	copy(buf[phy.HeaderLen():], payload)
	frame, err := phy.Send(buf, len(payload))
	require.NoError(t, err)

	spi.rxFIFO = append([]byte(nil), frame...)

	// A short frame fits one FIFO: sync-detect decodes the PHR and parks
	// in RxPortionLast; packet-end drains the tail and delivers upward.
	d.OnSyncDetect()
	waitState(t, d, StateRxPortionLast)
	d.OnPacketEnd()
	waitState(t, d, StateSniff)

	assert.Equal(t, payload, got)
}

func TestReceiveLongFrameStreams(t *testing.T) {
	var got []byte
	sink := func(payload []byte) { got = payload }

	d, spi, err := newTestDriver(RadioOpts{Sink: sink})
	require.NoError(t, err)
	require.NoError(t, d.On())

	phy := phy802154.New(false)
	payload := make([]byte, txFIFOSize+availBytesInTXFIFO+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	buf := make([]byte, phy.HeaderLen()+len(payload)+4)
	copy(buf[phy.HeaderLen():], payload)
	frame, err := phy.Send(buf, len(payload))
	require.NoError(t, err)

	spi.rxFIFO = append([]byte(nil), frame...)

	d.OnSyncDetect()
	waitState(t, d, StateRxPortionMiddle)
	d.OnFIFOThreshold()
	time.Sleep(5 * time.Millisecond)
	d.OnFIFOThreshold() // second refill crosses the last-chunk threshold
	waitState(t, d, StateRxPortionLast)
	d.OnPacketEnd()
	waitState(t, d, StateSniff)

	assert.Equal(t, payload, got)
}

func TestCCASucceeds(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	require.NoError(t, d.On())

	spi.ccaClear = true
	require.NoError(t, d.Ioctl(IoctlCcaGet, nil))
	assert.Equal(t, StateSniff, d.state)
}

func TestCCAChannelBusy(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{CCARetries: 1})
	require.NoError(t, err)
	require.NoError(t, d.On())

	spi.ccaClear = false
	assert.ErrorIs(t, d.Ioctl(IoctlCcaGet, nil), ErrChannelAccessFailure)
	assert.Equal(t, StateSniff, d.state)
}

func TestIoctlTxPowerRoundTrip(t *testing.T) {
	d, _, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)

	require.NoError(t, d.Ioctl(IoctlTxPowerSet, byte(0x3F)))
	var got byte
	require.NoError(t, d.Ioctl(IoctlTxPowerGet, &got))
	assert.Equal(t, byte(0x3F), got)
}

func TestIoctlUnsupportedWhenRegisterUnset(t *testing.T) {
	spi := newFakeSPI()
	regs := newTestRegs()
	regs.TxPower = 0
	spi.regs[regs.MARCState] = marcStateIdle
	spi.pktCfg2Addr = regs.PktCfg2
	spi.marcStatus0 = regs.MARCStatus0

	d, err := New(spi, Pins{}, regs, RadioOpts{SkipIRQSelfTest: true})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Ioctl(IoctlTxPowerSet, byte(1)), ErrCmdUnsupported)
}

func TestIoctlWorEnableTogglesStrobe(t *testing.T) {
	d, spi, err := newTestDriver(RadioOpts{})
	require.NoError(t, err)
	var last Strobe
	spi.strobeHook = func(s Strobe) { last = s }

	require.NoError(t, d.Ioctl(IoctlWorEnable, false))
	assert.False(t, d.worEnabled)
	require.NoError(t, d.On())
	assert.Equal(t, StateSniff, d.state)
	assert.Equal(t, StrobeSRX, last, "with WOR disabled On strobes continuous RX")
}
