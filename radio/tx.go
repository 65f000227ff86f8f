// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

// txFIFOSize is the physical TX FIFO depth shared across the
// CC11xx/CC112x/CC120x family.
const txFIFOSize = 128

// fifoThr is the FIFO_THR configuration value; each threshold interrupt
// moves FIFO_THR+1 bytes, so that is the streaming chunk size.
const fifoThr = 120
const availBytesInTXFIFO = fifoThr + 1

// singleBurstMaxLen is the largest frame the single-SPI-burst fixed-mode
// path handles; anything bigger needs the FIFO-threshold streaming
// algorithm. PKT_LEN is a single byte (length mod 256), so anything that
// fits in one 8-bit count goes out the simple way.
const singleBurstMaxLen = 255

// handleSend services a Send request from the worker loop. frame must
// already carry its PHY header and CRC trailer (phy802154.Send's job).
func (d *Driver) handleSend(req request) {
	if d.state != StateSniff {
		req.reply <- ErrBusy
		return
	}
	if len(req.data) == 0 {
		req.reply <- ErrInvalidArgument
		return
	}

	d.txReply = req.reply
	d.frame = req.data
	d.txLastPortion = false
	d.state = StateTxStarted

	if err := d.startTx(req.data); err != nil {
		d.abortTx(err)
		return
	}
	d.state = StateTxBusy
}

// startTx begins a transmission: reset to idle, flush the TX FIFO, load
// infinite packet-length mode, write as
// much of the frame as fits in one SPI burst, and strobe TX. Frames short
// enough to fit the single-burst path (<= singleBurstMaxLen) skip
// streaming entirely and go out fixed-length from the start.
func (d *Driver) startTx(frame []byte) error {
	if err := d.gotoIdle(); err != nil {
		return err
	}
	// The synthesizer drifts across sleep; recalibrate before each TX.
	if err := d.calibrateRF(); err != nil {
		return err
	}
	if _, err := d.strobe(StrobeSFTX); err != nil {
		return err
	}

	total := len(frame)

	if total <= singleBurstMaxLen {
		if err := d.setLengthMode(lengthConfigFixed); err != nil {
			return err
		}
		if err := d.writeReg(d.regs.PktLen, byte(total%256)); err != nil {
			return err
		}
		if err := d.writeFifo(frame); err != nil {
			return err
		}
		d.txLastPortion = true
		_, err := d.strobe(StrobeSTX)
		return err
	}

	if err := d.setLengthMode(lengthConfigInfinite); err != nil {
		return err
	}
	if err := d.writeReg(d.regs.PktLen, byte(total%256)); err != nil {
		return err
	}

	if err := d.writeFifo(frame[:txFIFOSize]); err != nil {
		return err
	}
	d.bufIx = txFIFOSize
	d.bytesLeft = total - txFIFOSize

	_, err := d.strobe(StrobeSTX)
	return err
}

// txFIFORefill handles a FIFO-below-threshold ISR while a long frame is
// streaming out: top the FIFO back up by availBytesInTXFIFO bytes (or
// whatever remains), and once the remainder fits in a single chunk,
// switch to fixed packet length mode so the chip stops transmitting on
// its own instead of running in infinite mode forever.
func (d *Driver) txFIFORefill() {
	if d.bytesLeft <= 0 {
		return
	}
	n := availBytesInTXFIFO
	if d.bytesLeft < n {
		n = d.bytesLeft
	}
	chunk := d.frame[d.bufIx : d.bufIx+n]
	if err := d.writeFifo(chunk); err != nil {
		d.errCount++
		d.abortTx(err)
		return
	}
	d.bufIx += n
	d.bytesLeft -= n

	if d.bytesLeft <= availBytesInTXFIFO && d.bytesLeft > 0 {
		if err := d.setLengthMode(lengthConfigFixed); err != nil {
			d.errCount++
			d.abortTx(err)
			return
		}
	}
	if d.bytesLeft == 0 {
		d.txLastPortion = true
	}
}

// finishTx transitions out of the TX submachine, restores sniff mode, and
// wakes up the goroutine blocked in Send.
func (d *Driver) finishTx(err error) {
	d.state = StateTxFini
	if sniffErr := d.gotoSniff(); err == nil {
		err = sniffErr
	}
	if d.txReply != nil {
		d.txReply <- err
		d.txReply = nil
	}
	d.frame = nil
}

// abortTx flushes the TX FIFO before finishing with an error. Nothing is
// retransmitted here; retries belong to the upper MAC.
func (d *Driver) abortTx(err error) {
	d.flushFIFOs()
	d.finishTx(err)
}
