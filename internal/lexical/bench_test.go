package lexical

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Capitu tinha olhos de cigana oblíqua e dissimulada.",
	"medium": `Verdes mares bravios de minha terra natal, onde canta a jandaia nas frondes
        da carnaúba; verdes mares que brilhais como líquida esmeralda aos raios do sol
        nascente, perlongando as alvas praias ensombradas de coqueiros. Serenai, verdes
        mares, e alisai docemente a vaga impetuosa, para que o barco aventureiro manso
        resvale à flor das águas.`,
	"long": strings.Repeat(`Não tive filhos, não transmiti a nenhuma criatura o legado da
        nossa miséria. Ao vencedor, as batatas. O sertanejo é, antes de tudo, um forte.
        A vida é um combate que aos fracos abate e aos fortes e bravos só pode exaltar. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func corpus(n int) []string {
	words := strings.Fields(sampleTexts["medium"])
	docs := make([]string, n)
	for i := range docs {
		start := i % (len(words) - 20)
		docs[i] = strings.Join(words[start:start+20], " ")
	}
	return docs
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		docs := corpus(n)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Build(docs)
			}
		})
	}
}

func BenchmarkScores(b *testing.B) {
	query := Tokenize("verdes mares bravios da terra natal")
	for _, n := range []int{1000, 10000, 100000} {
		ix := Build(corpus(n))
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = ix.Scores(query)
			}
		})
	}
}
