// Package metrics scores a predicted array against ground truth.
//
// All functions are pure and side-effect free. The two compared tensors
// must share a shape exactly; any disagreement fails with
// unmix.ErrShapeMismatch. Solver outputs and ground truth often live on
// different absolute intensity scales, which is why the range-invariant
// PSNR variants exist: they remove the best-fit global scale and offset
// before scoring.
package metrics

import (
	"fmt"
	"math"

	"unmix"
)

func checkShapes(gt, pred *unmix.Tensor) error {
	if !gt.EqualShape(pred) {
		return fmt.Errorf("%w: ground truth shape %v vs prediction shape %v",
			unmix.ErrShapeMismatch, gt.Shape, pred.Shape)
	}
	return nil
}

// PixelWiseMSE returns the elementwise squared error, same shape as the
// inputs, no reduction.
func PixelWiseMSE(gt, pred *unmix.Tensor) (*unmix.Tensor, error) {
	if err := checkShapes(gt, pred); err != nil {
		return nil, err
	}
	out := gt.Clone()
	for i, v := range out.Data {
		d := v - pred.Data[i]
		out.Data[i] = d * d
	}
	return out, nil
}

// PixelWiseMAE returns the elementwise absolute error, same shape as the
// inputs, no reduction.
func PixelWiseMAE(gt, pred *unmix.Tensor) (*unmix.Tensor, error) {
	if err := checkShapes(gt, pred); err != nil {
		return nil, err
	}
	out := gt.Clone()
	for i, v := range out.Data {
		out.Data[i] = math.Abs(v - pred.Data[i])
	}
	return out, nil
}

// PSNR computes 10*log10(dataRange^2) - 10*log10(mean squared error).
// A non-positive dataRange selects max(gt) - min(gt). Identical inputs
// have zero error and return +Inf.
func PSNR(gt, pred *unmix.Tensor, dataRange float64) (float64, error) {
	if err := checkShapes(gt, pred); err != nil {
		return 0, err
	}
	if dataRange <= 0 {
		dataRange = gt.Max() - gt.Min()
	}
	mse := 0.0
	for i, v := range gt.Data {
		d := v - pred.Data[i]
		mse += d * d
	}
	mse /= float64(len(gt.Data))
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 20*math.Log10(dataRange) - 10*math.Log10(mse), nil
}

// RangeInvariantPSNR standardizes the ground truth (mean subtracted,
// std divided) and fits a single least-squares scale factor mapping the
// mean-centered prediction onto it before computing PSNR over the
// standardized range. The score is therefore unchanged under any
// prediction transform k*pred + c with k > 0.
func RangeInvariantPSNR(gt, pred *unmix.Tensor) (float64, error) {
	if err := checkShapes(gt, pred); err != nil {
		return 0, err
	}
	n := float64(len(gt.Data))

	gtMean := 0.0
	for _, v := range gt.Data {
		gtMean += v
	}
	gtMean /= n
	gtVar := 0.0
	for _, v := range gt.Data {
		d := v - gtMean
		gtVar += d * d
	}
	gtStd := math.Sqrt(gtVar / n)
	if gtStd == 0 {
		return 0, fmt.Errorf("%w: constant ground truth, standardization undefined", unmix.ErrDegenerateInput)
	}

	predMean := 0.0
	for _, v := range pred.Data {
		predMean += v
	}
	predMean /= n

	// Scalar least-squares fit of the centered prediction onto the
	// standardized ground truth: a = sum(gt_s * pred_c) / sum(pred_c^2).
	num, den := 0.0, 0.0
	for i, v := range gt.Data {
		gs := (v - gtMean) / gtStd
		pc := pred.Data[i] - predMean
		num += gs * pc
		den += pc * pc
	}
	a := 0.0 // a constant prediction carries no signal to rescale
	if den > 0 {
		a = num / den
	}

	gtS := gt.Clone()
	predR := pred.Clone()
	for i, v := range gt.Data {
		gtS.Data[i] = (v - gtMean) / gtStd
		predR.Data[i] = a * (pred.Data[i] - predMean)
	}
	return PSNR(gtS, predR, gtS.Max()-gtS.Min())
}

// SpectralPSNR computes PSNR independently per leading-axis channel (a
// spectral band or an endmember) and returns the arithmetic mean of the
// per-channel scores. With rangeInvariant it uses RangeInvariantPSNR per
// channel, otherwise plain PSNR with the channel's own range. This is
// the top-level score for comparing an abundance map against ground
// truth.
func SpectralPSNR(gt, pred *unmix.Tensor, rangeInvariant bool) (float64, error) {
	if err := checkShapes(gt, pred); err != nil {
		return 0, err
	}
	sum := 0.0
	channels := gt.Channels()
	for c := range channels {
		gc, pc := gt.Channel(c), pred.Channel(c)
		var score float64
		var err error
		if rangeInvariant {
			score, err = RangeInvariantPSNR(gc, pc)
		} else {
			score, err = PSNR(gc, pc, 0)
		}
		if err != nil {
			return 0, fmt.Errorf("channel %d: %w", c, err)
		}
		sum += score
	}
	return sum / float64(channels), nil
}
