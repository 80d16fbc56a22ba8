// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package pagedb

import "context"

// Flush implements spec §4.9's flush(): roll the epoch forward, wait for
// every guard on the just-drained epoch to release, serialize and write
// every leaf dirtied at or before that epoch, then run the object store's
// maintenance pass. Concurrent callers are coalesced onto a single
// in-flight flush via singleflight, matching spec §4.9's "concurrent flush
// calls observe a single underlying flush" note.
func (t *Tree) Flush(ctx context.Context) (int, error) {
	if err := t.checkError(); err != nil {
		return 0, err
	}
	v, err, _ := t.sf.Do("flush", func() (interface{}, error) {
		return t.doFlush(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (t *Tree) doFlush(ctx context.Context) (int, error) {
	donePrev, vacantPrev, doneFwd := t.ps.Coord.RollForward()
	defer doneFwd()

	<-donePrev
	throughEpoch := vacantPrev()

	n, err := t.ps.Flush(ctx, throughEpoch)
	if err != nil {
		t.errs.setError(ErrKindIO, err.Error())
		return n, err
	}
	if err := t.store.Maintenance(ctx); err != nil {
		t.errs.setError(ErrKindIO, err.Error())
		return n, err
	}
	return n, nil
}
