// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

// doOn arms Sniff (receive) mode, waking the chip from Sleep through Idle
// first if necessary. Idempotent: already being in Sniff is a success,
// not an error.
func (d *Driver) doOn() error {
	switch d.state {
	case StateSniff:
		return nil
	case StateSleep:
		if err := d.gotoIdle(); err != nil {
			d.state = StateErr
			return err
		}
	case StateNonInit:
		return ErrInitFailed
	default:
		return ErrBusy
	}
	if err := d.gotoSniff(); err != nil {
		d.state = StateErr
		return err
	}
	return nil
}

// doOff idles the chip, flushes both FIFOs, and parks it in Sleep.
// Idempotent with respect to Sleep. From any state other than Sniff the
// chip is forced through SIDLE first so the SPWD strobe lands cleanly.
func (d *Driver) doOff() error {
	if d.state == StateSleep {
		return nil
	}
	if d.state != StateSniff {
		if err := d.gotoIdle(); err != nil {
			d.state = StateErr
			return err
		}
	}
	if err := d.flushFIFOs(); err != nil {
		d.state = StateErr
		return err
	}
	return d.gotoSleep()
}

// onPacketEnd is the packet-end ISR vector (falling edge on
// PKT_SYNC_RXTX). It completes whichever of RX or TX is in progress;
// entering in any other state is an ISR-in-unexpected-state error.
func (d *Driver) onPacketEnd() {
	switch d.state {
	case StateRxPortionLast:
		if d.bytesLeft > 0 {
			data, err := d.readFifo(d.bytesLeft)
			if err != nil {
				d.errCount++
				d.flushFIFOs()
				d.state = StateSniff
				return
			}
			copy(d.rxBuf[d.bufIx:], data)
			d.bufIx += d.bytesLeft
			d.bytesLeft = 0
		}
		d.state = StateRxFini
		d.completeRx() // transitions to Sniff itself, or Err on failure

	case StateTxBusy:
		if d.txLastPortion {
			d.finishTx(nil)
		} else {
			// packet-end fired before the final chunk was queued: the
			// chip's MARC result disagrees with our bookkeeping.
			d.errCount++
			d.abortTx(ErrTxNoPacket)
		}

	default:
		d.errCount++
	}
}
