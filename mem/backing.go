package mem

import "polykernel/config"

// wordsPerPage is the number of 8-byte page-table entries that fit in one
// page, mirroring the teacher's Pmap_t ([512]Pa_t).
const wordsPerPage = config.PageSize / 8

// TableView returns the simulated backing storage of frame f as a page of
// 64-bit words, creating it (zero-filled) on first access. This stands in
// for a real kernel-virtual direct map (mem.Physmem_t.Dmap in the
// teacher): the frame addresses this pool hands out are not backed by
// real host memory, so the pool itself is the "physical memory" that
// table walks read and write, exactly the way mem.Pg_t values are read
// and written through mem.Physmem_t.Dmap in the teacher.
func (p *Pool) TableView(f Frame) *[wordsPerPage]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backing == nil {
		p.backing = make(map[Frame]*[wordsPerPage]uint64)
	}
	pg, ok := p.backing[f]
	if !ok {
		pg = &[wordsPerPage]uint64{}
		p.backing[f] = pg
	}
	return pg
}
