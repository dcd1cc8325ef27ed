// Package unmix estimates, for a multi-band (hyperspectral or spectral
// microscopy) image, the per-pixel fractional contribution of a fixed
// set of known spectral signatures under the linear mixing model
// Y = E·A.
//
// The pipeline has three stages:
//
//   - BuildReferenceMatrix bins raw, irregularly sampled emission
//     spectra onto a shared wavelength grid and min-max normalizes each
//     endmember, producing the reference matrix E (bands x endmembers).
//     E is built once per endmember set and reused across images.
//   - A Solver fits every pixel of a mixed image against E. Two
//     variants exist: LeastSquares (unconstrained) and FCLSU
//     (abundances nonnegative and summing to one, solved as a quadratic
//     program via an active-set method). Pixels are fully independent
//     and are solved in parallel; all shared structure (E, the
//     pseudo-inverse, the augmented constraint system) is factored once
//     up front.
//   - The metrics subpackage scores an abundance map against ground
//     truth, with range-invariant PSNR variants for outputs living on a
//     different absolute scale.
//
// Mixed images and abundance maps are Tensors with a leading channel
// axis over two or three spatial dimensions; solvers handle both
// without branching by flattening the spatial dims to one pixel axis.
package unmix
