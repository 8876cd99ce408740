package features

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/types"
)

// loadVector reads a single row of dim raw little-endian float32 values
// from the start of path (no length prefix), e.g. the PCA mean vector or
// the keyword bias vector.
func loadVector(path string, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapLoad("features.loadVector", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	row := make([]float32, dim)
	if err := readRow(r, row); err != nil {
		return nil, errs.WrapLoad("features.loadVector", err)
	}
	return row, nil
}

// loadMatrixRows reads rows rows of dim raw little-endian float32 values
// (no length prefix, no L2 normalization — used for the keyword feature
// matrix and PCA projection matrix, which are not unit vectors).
func loadMatrixRows(path string, rows, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapLoad("features.loadMatrixRows", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	out := make([][]float32, 0, rows)
	for i := 0; i < rows; i++ {
		row := make([]float32, dim)
		if err := readRow(r, row); err != nil {
			break
		}
		out = append(out, row)
	}
	return out, nil
}

// LoadKeywords parses the ':'-separated kws_file
// (surface_strings:synset_id[:top_example_frames[:description]]) per line,
// grounded on KeywordRanker::parse_kw_classes_text_file, plus the four
// companion binary artifacts (kw_scores_mat, kw_bias_vec, kw_PCA_mean_vec,
// kw_PCA_mat) named in the config table.
func LoadKeywords(kwsFile string, preDim, postDim int, scoresMatFile, biasVecFile, pcaMeanFile, pcaMatFile string) (*Table, error) {
	f, err := os.Open(kwsFile)
	if err != nil {
		return nil, errs.WrapLoad("features.keywords", err)
	}
	defer f.Close()

	var keywords []Keyword
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		surfaces := splitSurfaces(parts[0])
		synsetID, _ := strconv.Atoi(strings.TrimSpace(parts[1]))

		var topExamples []types.FrameID
		if len(parts) > 2 {
			for _, tok := range strings.Split(parts[2], "#") {
				tok = strings.TrimSpace(tok)
				if tok == "" {
					continue
				}
				if n, err := strconv.Atoi(tok); err == nil {
					topExamples = append(topExamples, types.FrameID(n))
				}
			}
		}
		description := ""
		if len(parts) > 3 {
			description = parts[3]
		}

		keywords = append(keywords, Keyword{
			ID:          types.KeywordID(len(keywords)),
			SynsetID:    types.SynsetID(synsetID),
			Surfaces:    surfaces,
			Description: description,
			TopExamples: topExamples,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, errs.WrapLoad("features.keywords", err)
	}
	if len(keywords) == 0 {
		return nil, errs.WrapLoad("features.keywords", errNotFound("no keywords parsed from "+kwsFile))
	}

	kwFeatures, err := loadMatrixRows(scoresMatFile, len(keywords), preDim)
	if err != nil {
		return nil, err
	}
	bias, err := loadVector(biasVecFile, preDim)
	if err != nil {
		return nil, err
	}
	pcaMean, err := loadVector(pcaMeanFile, preDim)
	if err != nil {
		return nil, err
	}
	pcaMat, err := loadMatrixRows(pcaMatFile, postDim, preDim)
	if err != nil {
		return nil, err
	}

	return NewTable(keywords, kwFeatures, bias, pcaMean, pcaMat)
}

func splitSurfaces(raw string) []string {
	var out []string
	for _, s := range strings.Split(strings.TrimSpace(raw), ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
