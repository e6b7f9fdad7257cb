// Package dataprocessing implements the four eye-tracking CSV stages.
//
// # Stages
//
//  1. ProjectRows: resolves the seven target columns from the raw header by
//     substring match and rewrites every row in the fixed order
//     EventID,AppTime,ServerTime,X,Y,AriaLabel,LFHF.
//  2. CategorizeRows: numbers rows, names the event, classifies fixation
//     starts by aria-label and gives each fixation end the category and
//     elapsed time of the start before it.
//  3. InterpolateRows: linearly interpolates the LF/HF observations onto
//     every fixation boundary that lies between two observations.
//  4. DeriveRows: averages each start/end pair into one element value and
//     computes the change from the previous element.
//
// Each stage is a single pass over an io.Reader into an io.Writer. The
// carried state of a stage lives on a fold value (Categorizer, Interpolator,
// Deriver) so a stage can be driven row by row in tests.
//
// # Errors
//
// Stage functions return *errors.AppError values carrying the stage name
// and the 1-based input line. Schema, parse and sequence errors abort the
// stage; the caller is responsible for discarding partial output.
package dataprocessing
