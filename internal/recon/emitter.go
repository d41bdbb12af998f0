package recon

import "encoding/binary"

// emitFrame reads the accumulator into a new frame stamped with the
// scheduled boundary and hands it to the frame handler.
func (r *Reconstructor) emitFrame(stamp int64) {
	f := r.template
	f.Header.StampNs = stamp
	f.Seq = r.seq
	f.Data = make([]byte, int(f.Step)*int(f.Height))
	r.acc.GetImage(f.Data, int(f.Step))

	r.seq++
	r.frames++
	tracef("frame seq=%d stamp=%d events=%d", f.Seq, stamp, r.events)
	r.handler.Frame(&f, r.topic)
}

func hostIsBigEndian() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	return b[0] == 0
}
