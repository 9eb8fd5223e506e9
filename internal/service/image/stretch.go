package image

import (
	"image"
	"math"
)

// Параметры автоматического растяжения (screen transfer function).
const (
	shadowsClipping  = -2.8   // в единицах нормированного MAD от медианы
	targetBackground = 0.25   // целевая яркость фона после растяжения
	madNormalization = 1.4826 // MAD -> сигма для нормального распределения
)

// stretchParams тени c0, света c1 и баланс полутонов m. Тождественное преобразование: 0, 1, 0.5.
type stretchParams struct {
	shadows    float64
	highlights float64
	midtones   float64
}

func (p stretchParams) identity() bool {
	return p.shadows == 0 && p.highlights == 1 && p.midtones == 0.5
}

// mtf функция передачи полутонов: mtf(m, 0)=0, mtf(m, m)=0.5, mtf(m, 1)=1.
func mtf(m, x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	case x == m:
		return 0.5
	}
	return (m - 1) * x / ((2*m-1)*x - m)
}

// channelStats медиана и MAD по всем цветовым каналам (связанное растяжение), значения 0..1.
func channelStats(img *image.RGBA64) (median, mad float64) {
	var hist [65536]uint32
	pix := img.Pix
	total := 0
	for i := 0; i+7 < len(pix); i += 8 {
		for c := 0; c < 6; c += 2 {
			v := uint16(pix[i+c])<<8 | uint16(pix[i+c+1])
			hist[v]++
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}
	med := histMedian(hist[:], total)

	var dev [65536]uint32
	for v, n := range hist {
		if n == 0 {
			continue
		}
		d := v - int(med)
		if d < 0 {
			d = -d
		}
		dev[d] += n
	}
	madv := histMedian(dev[:], total)
	return float64(med) / 65535, float64(madv) / 65535
}

func histMedian(hist []uint32, total int) int {
	half := (total + 1) / 2
	acc := 0
	for v, n := range hist {
		acc += int(n)
		if acc >= half {
			return v
		}
	}
	return len(hist) - 1
}

// estimateStretch оценивает параметры автоматического растяжения.
// ok=false означает, что изображение уже в нелинейном (пригодном для показа) диапазоне.
func estimateStretch(median, mad float64) (stretchParams, bool) {
	if median >= targetBackground {
		return stretchParams{shadows: 0, highlights: 1, midtones: 0.5}, false
	}
	madn := madNormalization * mad
	c0 := median + shadowsClipping*madn
	if madn == 0 {
		c0 = 0
	}
	c0 = math.Min(math.Max(c0, 0), 1)
	m := mtf(targetBackground, median-c0)
	return stretchParams{shadows: c0, highlights: 1, midtones: m}, true
}

// applyStretch применяет преобразование к цветовым каналам на месте, альфа не трогается.
func applyStretch(img *image.RGBA64, p stretchParams) {
	lut := make([]uint16, 65536)
	span := p.highlights - p.shadows
	for v := range lut {
		x := float64(v) / 65535
		if span > 0 {
			x = (x - p.shadows) / span
		}
		lut[v] = uint16(math.Round(mtf(p.midtones, x) * 65535))
	}

	pix := img.Pix
	for i := 0; i+7 < len(pix); i += 8 {
		for c := 0; c < 6; c += 2 {
			v := lut[uint16(pix[i+c])<<8|uint16(pix[i+c+1])]
			pix[i+c] = uint8(v >> 8)
			pix[i+c+1] = uint8(v)
		}
	}
}
