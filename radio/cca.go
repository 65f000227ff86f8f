// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import "time"

// ccaPollTimeout bounds how long a single CCA attempt polls for the chip
// to settle into TX or report a TX-on-CCA failure, guarding against a
// wedged chip rather than modeling any real CCA duration.
const ccaPollTimeout = 50 * time.Millisecond

// doCCA performs a clear channel assessment via TX-on-CCA/LBT: switch to
// RSSI-below-threshold mode, strobe TX from Sniff, and poll until the
// chip either enters TX (channel clear) or flags TXONCCA_FAILED in
// MARC_STATUS0 (channel busy). Makes up to opts.CCARetries attempts in
// total before giving up: 4 is the historical CC112x behavior, CC120x
// setups use 1.
func (d *Driver) doCCA() error {
	if d.state != StateSniff {
		return ErrBusy
	}

	if err := d.writeReg(d.regs.PktCfg2, ccaModeRSSIBelowThr); err != nil {
		return err
	}
	defer d.writeReg(d.regs.PktCfg2, ccaModeNone)

	var result error
	for attempt := 0; attempt < d.opts.CCARetries; attempt++ {
		d.state = StateCcaBusy
		if _, err := d.strobe(StrobeSTX); err != nil {
			d.state = StateSniff
			return err
		}

		deadline := time.Now().Add(ccaPollTimeout)
		timedOut := false
		for d.state == StateCcaBusy {
			// doCCA runs on the worker goroutine, so the CCA-done event
			// can't be delivered the normal way while we poll; drain it
			// (and any stray ISR) here.
			select {
			case ev := <-d.isrEvents:
				d.handleISR(ev)
				continue
			default:
			}
			status, err := d.strobe(StrobeSNOP)
			if err != nil {
				d.state = StateSniff
				return err
			}
			if status&chipStatusStateTX != 0 {
				break
			}
			if time.Now().After(deadline) {
				timedOut = true
				break
			}
			time.Sleep(ccaPollInterval)
		}

		if timedOut {
			result = ErrTxTimeout
		} else {
			marc, err := d.readReg(d.regs.MARCStatus0)
			if err != nil {
				d.state = StateSniff
				return err
			}
			if marc&marcStatus0TxOnCCAFailedMask != 0 {
				result = ErrChannelAccessFailure
			} else {
				result = nil
			}
		}

		d.state = StateSniff
		if result == nil {
			break
		}
	}

	if err := d.gotoSniff(); err != nil {
		return err
	}
	return result
}
